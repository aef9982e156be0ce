package fiscal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Outcomes of a FakeGateway.
const (
	FakeAuthorize = "authorize"
	FakeReject    = "reject"
	FakeFail      = "fail"
)

// FakeGateway answers deterministically without contacting any authority.
// It backs homologation setups without a hosted emitter, and tests.
type FakeGateway struct {
	Outcome string
	Delay   time.Duration
	// Started, when set, receives one value per call before the delay.
	Started chan struct{}

	mu    sync.Mutex
	calls []*InvoiceRequest
}

// NewFakeGateway returns a gateway that always produces outcome.
func NewFakeGateway(outcome string) (*FakeGateway, error) {
	switch outcome {
	case FakeAuthorize, FakeReject, FakeFail:
		return &FakeGateway{Outcome: outcome}, nil
	}
	return nil, fmt.Errorf("unknown fake gateway outcome %q", outcome)
}

// Submit implements Gateway.
func (g *FakeGateway) Submit(ctx context.Context, req *InvoiceRequest) (*Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()

	if g.Started != nil {
		select {
		case g.Started <- struct{}{}:
		default:
		}
	}

	if g.Delay > 0 {
		timer := time.NewTimer(g.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, &GatewayError{Op: "submit", Err: ctx.Err()}
		}
	}

	switch g.Outcome {
	case FakeReject:
		return &Result{StatusCode: "225", Reason: "Rejeição: Falha no Schema XML da NFe"}, nil
	case FakeFail:
		return nil, &GatewayError{Op: "submit", Err: errors.New("connection refused")}
	default:
		return &Result{
			Accepted:   true,
			Protocol:   fmt.Sprintf("1%d%013d", req.Environment, req.Number),
			StatusCode: "100",
			Reason:     "Autorizado o uso da NF-e",
		}, nil
	}
}

// Calls returns the requests received so far.
func (g *FakeGateway) Calls() []*InvoiceRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*InvoiceRequest(nil), g.calls...)
}
