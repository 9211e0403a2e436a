package testutil

import (
	"context"
	"fmt"
	"sync"

	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/gateway"
)

// FakeGatewayClient implements gateway.Client with scripted responses.
// Responses are consumed in FIFO order per operation; when the script is
// empty the default result is returned. Every request is recorded for
// assertions.
type FakeGatewayClient struct {
	mu sync.Mutex

	saleScript     []saleOutcome
	tokenizeScript []tokenizeOutcome

	DefaultSale     *gateway.ChargeResult
	DefaultTokenize *gateway.TokenizeResult

	SaleRequests     []*gateway.SaleRequest
	RefundRequests   []*gateway.RefundRequest
	ReversalRequests []*gateway.ReversalRequest
	TokenizeRequests []*gateway.TokenizeRequest
}

type saleOutcome struct {
	result *gateway.ChargeResult
	err    error
}

type tokenizeOutcome struct {
	result *gateway.TokenizeResult
	err    error
}

func NewFakeGatewayClient() *FakeGatewayClient {
	return &FakeGatewayClient{
		DefaultSale: &gateway.ChargeResult{
			Approved:             true,
			ResponseCode:         "A01",
			ResponseMessage:      "APPROVED",
			TransactionID:        "gw_txn_default",
			NetworkTransactionID: "ntx_default",
		},
		DefaultTokenize: &gateway.TokenizeResult{
			Approved:             true,
			ResponseCode:         "A01",
			ResponseMessage:      "APPROVED",
			TokenValue:           "tok_value_default",
			MaskedNumber:         "************1111",
			TransactionID:        "gw_txn_default",
			NetworkTransactionID: "ntx_default",
		},
	}
}

// QueueSale enqueues the next sale outcome.
func (f *FakeGatewayClient) QueueSale(result *gateway.ChargeResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saleScript = append(f.saleScript, saleOutcome{result: result, err: err})
}

// QueueDecline enqueues a declined sale with the given code.
func (f *FakeGatewayClient) QueueDecline(code, message string) {
	f.QueueSale(&gateway.ChargeResult{
		Approved:        false,
		ResponseCode:    code,
		ResponseMessage: message,
	}, nil)
}

// QueueTimeout enqueues a sale that fails as a gateway timeout.
func (f *FakeGatewayClient) QueueTimeout() {
	f.QueueSale(nil, ierr.NewError("gateway request timed out").
		Mark(ierr.ErrGatewayTimeout))
}

// QueueTokenize enqueues the next tokenize outcome.
func (f *FakeGatewayClient) QueueTokenize(result *gateway.TokenizeResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenizeScript = append(f.tokenizeScript, tokenizeOutcome{result: result, err: err})
}

func (f *FakeGatewayClient) Sale(ctx context.Context, req *gateway.SaleRequest) (*gateway.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SaleRequests = append(f.SaleRequests, req)

	if len(f.saleScript) > 0 {
		next := f.saleScript[0]
		f.saleScript = f.saleScript[1:]
		return next.result, next.err
	}
	result := *f.DefaultSale
	result.TransactionID = fmt.Sprintf("gw_txn_%d", len(f.SaleRequests))
	return &result, nil
}

func (f *FakeGatewayClient) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefundRequests = append(f.RefundRequests, req)
	result := *f.DefaultSale
	return &result, nil
}

func (f *FakeGatewayClient) Reversal(ctx context.Context, req *gateway.ReversalRequest) (*gateway.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReversalRequests = append(f.ReversalRequests, req)
	result := *f.DefaultSale
	return &result, nil
}

func (f *FakeGatewayClient) Tokenize(ctx context.Context, req *gateway.TokenizeRequest) (*gateway.TokenizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TokenizeRequests = append(f.TokenizeRequests, req)

	if len(f.tokenizeScript) > 0 {
		next := f.tokenizeScript[0]
		f.tokenizeScript = f.tokenizeScript[1:]
		return next.result, next.err
	}
	result := *f.DefaultTokenize
	return &result, nil
}

// SaleCount returns the number of sale calls made.
func (f *FakeGatewayClient) SaleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.SaleRequests)
}
