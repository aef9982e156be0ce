package fiscal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Certificate is the A1 certificate used to sign NFC-e documents. Its content
// is opaque here and never rendered by fmt or zap.
type Certificate struct {
	data     []byte
	password string
}

// NewCertificate wraps raw PKCS#12 bytes.
func NewCertificate(data []byte, password string) *Certificate {
	return &Certificate{data: data, password: password}
}

// LoadCertificate reads the certificate file. Every failure is a
// ConfigurationError so the attempt stops before reaching the gateway.
func LoadCertificate(path, password string) (*Certificate, error) {
	if path == "" {
		return nil, &ConfigurationError{Item: "CERTIFICATE_PATH", Reason: "is not set"}
	}
	if password == "" {
		return nil, &ConfigurationError{Item: "CERTIFICATE_PASSWORD", Reason: "is not set"}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigurationError{Item: "CERTIFICATE_PATH", Reason: fmt.Sprintf("certificate file %s not found", path)}
	}
	if err != nil {
		return nil, &ConfigurationError{Item: "CERTIFICATE_PATH", Reason: fmt.Sprintf("certificate file %s cannot be read: %v", path, err)}
	}
	if len(data) == 0 {
		return nil, &ConfigurationError{Item: "CERTIFICATE_PATH", Reason: fmt.Sprintf("certificate file %s is empty", path)}
	}

	return NewCertificate(data, password), nil
}

// Bytes returns the raw certificate content.
func (c *Certificate) Bytes() []byte { return c.data }

// Password returns the certificate password.
func (c *Certificate) Password() string { return c.password }

func (c *Certificate) String() string { return "Certificate([REDACTED])" }

func (c *Certificate) GoString() string { return c.String() }

// MarshalJSON keeps the certificate out of any serialized request.
func (c *Certificate) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}
