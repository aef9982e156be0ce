package fiscal

import "context"

// Result is the answer of the tax authority to one submission.
type Result struct {
	Accepted   bool
	Protocol   string
	StatusCode string
	Reason     string
}

// Gateway submits an invoice to the tax authority. Implementations return a
// Result for any answer of the authority, accepted or not, and an error
// (preferably a *GatewayError) when no answer was obtained. The deadline of
// ctx bounds the call.
type Gateway interface {
	Submit(ctx context.Context, req *InvoiceRequest) (*Result, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req *InvoiceRequest) (*Result, error)

// Submit calls f(ctx, req).
func (f GatewayFunc) Submit(ctx context.Context, req *InvoiceRequest) (*Result, error) {
	return f(ctx, req)
}

// IsAuthorizedStatus reports whether a SEFAZ cStat authorizes the document:
// 100 (authorized) or 150 (authorized out of time).
func IsAuthorizedStatus(code string) bool {
	return code == "100" || code == "150"
}
