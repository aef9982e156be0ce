package fiscal

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"
)

// RemoteGateway posts invoices to a hosted NFC-e emission service that signs
// the XML and talks to SEFAZ.
type RemoteGateway struct {
	client *resty.Client
	logger *zap.Logger
}

type remoteRequest struct {
	*InvoiceRequest
	Certificate         string `json:"certificado"`
	CertificatePassword string `json:"senha_certificado"`
	CSCID               string `json:"csc_id"`
	CSCToken            string `json:"csc_token"`
}

type remoteResponse struct {
	StatusCode string `json:"cStat"`
	Reason     string `json:"xMotivo"`
	Protocol   string `json:"nProt"`
}

// NewRemoteGateway creates a gateway for the service at baseURL. token, when
// set, is sent as a bearer token.
func NewRemoteGateway(baseURL, token string, timeout time.Duration, logger *zap.Logger) *RemoteGateway {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}

	return &RemoteGateway{client: client, logger: logger}
}

// Submit implements Gateway.
func (g *RemoteGateway) Submit(ctx context.Context, req *InvoiceRequest) (*Result, error) {
	if req.Certificate == nil {
		return nil, &GatewayError{Op: "submit", Err: errors.New("request carries no certificate")}
	}

	body := remoteRequest{
		InvoiceRequest:      req,
		Certificate:         base64.StdEncoding.EncodeToString(req.Certificate.Bytes()),
		CertificatePassword: req.Certificate.Password(),
		CSCID:               req.SecurityCode.ID,
		CSCToken:            req.SecurityCode.Token,
	}

	var answer remoteResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("X-Correlation-ID", req.CorrelationID.String()).
		SetBody(body).
		SetResult(&answer).
		Post("/nfce")
	if err != nil {
		return nil, &GatewayError{Op: "submit", Err: err}
	}

	g.logger.Debug("fiscal gateway answered",
		zap.Int64("sale_id", req.SaleID),
		zap.String("correlation_id", req.CorrelationID.String()),
		zap.Int("http_status", resp.StatusCode()),
	)

	if resp.IsError() {
		return nil, &GatewayError{Op: "submit", Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), resp.String())}
	}
	if answer.StatusCode == "" {
		return nil, &GatewayError{Op: "decode", Err: errors.New("response without cStat")}
	}

	return &Result{
		Accepted:   IsAuthorizedStatus(answer.StatusCode),
		Protocol:   answer.Protocol,
		StatusCode: answer.StatusCode,
		Reason:     answer.Reason,
	}, nil
}

// Close releases the idle connections of the underlying client.
func (g *RemoteGateway) Close() error {
	return g.client.Close()
}
