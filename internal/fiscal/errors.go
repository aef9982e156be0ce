package fiscal

import "fmt"

// ConfigurationError is returned before any gateway call when an emitter
// setting or the certificate material is missing or malformed.
type ConfigurationError struct {
	Item   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("fiscal configuration: %s %s", e.Item, e.Reason)
}

// GatewayError wraps a failure to obtain an answer from the fiscal gateway:
// transport errors, timeouts and malformed responses.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("fiscal gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// RejectionError is an explicit refusal by the tax authority.
type RejectionError struct {
	StatusCode string
	Reason     string
}

// Error renders "cStat - xMotivo", the detail stored on the sale.
func (e *RejectionError) Error() string {
	if d := statusDetail(e.StatusCode, e.Reason); d != "" {
		return d
	}
	return "rejected without reason"
}

func statusDetail(code, reason string) string {
	switch {
	case code == "":
		return reason
	case reason == "":
		return code
	}
	return code + " - " + reason
}
