package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/duespay/duespay/internal/audit"
	"github.com/duespay/duespay/internal/config"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
)

// Client defines the interface for payment gateway operations.
type Client interface {
	// Sale charges a stored token. Declines come back as an unapproved
	// ChargeResult, not an error.
	Sale(ctx context.Context, req *SaleRequest) (*ChargeResult, error)
	// Refund returns funds against a settled transaction.
	Refund(ctx context.Context, req *RefundRequest) (*ChargeResult, error)
	// Reversal voids an unsettled transaction.
	Reversal(ctx context.Context, req *ReversalRequest) (*ChargeResult, error)
	// Tokenize exchanges a raw instrument for a durable token alongside
	// the first charge.
	Tokenize(ctx context.Context, req *TokenizeRequest) (*TokenizeResult, error)
}

type client struct {
	cfg        config.GatewayConfig
	signer     *Signer
	policy     RetryPolicy
	httpClient *http.Client
	recorder   audit.Recorder
	logger     *logger.Logger
}

// NewClient creates a new gateway client. The merchant identity and
// signing secret must already be validated by configuration loading.
func NewClient(cfg config.GatewayConfig, policy RetryPolicy, recorder audit.Recorder, log *logger.Logger) Client {
	return &client{
		cfg:    cfg,
		signer: NewSigner(cfg.SigningSecret),
		policy: policy,
		// Per-attempt deadlines come from the retry policy's contexts, so
		// the shared client carries no timeout of its own.
		httpClient: &http.Client{},
		recorder:   recorder,
		logger:     log,
	}
}

func (c *client) Sale(ctx context.Context, req *SaleRequest) (*ChargeResult, error) {
	fields, err := c.send(ctx, req, req.TransactionNumber)
	if err != nil {
		return nil, err
	}
	result := chargeResultFromFields(fields, c.cfg.ApprovedCodes)
	c.logger.Infow("gateway sale completed",
		"transaction_number", req.TransactionNumber,
		"approved", result.Approved,
		"response_code", result.ResponseCode,
		"gateway_transaction_id", result.TransactionID)
	return result, nil
}

func (c *client) Refund(ctx context.Context, req *RefundRequest) (*ChargeResult, error) {
	fields, err := c.send(ctx, req, req.TransactionNumber)
	if err != nil {
		return nil, err
	}
	result := chargeResultFromFields(fields, c.cfg.ApprovedCodes)
	c.logger.Infow("gateway refund completed",
		"transaction_number", req.TransactionNumber,
		"approved", result.Approved,
		"response_code", result.ResponseCode)
	return result, nil
}

func (c *client) Reversal(ctx context.Context, req *ReversalRequest) (*ChargeResult, error) {
	fields, err := c.send(ctx, req, req.TransactionNumber)
	if err != nil {
		return nil, err
	}
	result := chargeResultFromFields(fields, c.cfg.ApprovedCodes)
	c.logger.Infow("gateway reversal completed",
		"transaction_number", req.TransactionNumber,
		"approved", result.Approved,
		"response_code", result.ResponseCode)
	return result, nil
}

func (c *client) Tokenize(ctx context.Context, req *TokenizeRequest) (*TokenizeResult, error) {
	fields, err := c.send(ctx, req, req.TransactionNumber)
	if err != nil {
		return nil, err
	}
	result := tokenizeResultFromFields(fields, c.cfg.ApprovedCodes)
	c.logger.Infow("gateway tokenize completed",
		"transaction_number", req.TransactionNumber,
		"approved", result.Approved,
		"response_code", result.ResponseCode,
		"has_network_transaction_id", result.NetworkTransactionID != "")
	return result, nil
}

// send signs and posts one request through the retry policy and parses
// whichever response form the gateway returns. Every call, win or lose, is
// recorded in the certification log.
func (c *client) send(ctx context.Context, req Request, transactionNumber string) (Fields, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := req.Body()
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to serialize gateway request").
			Mark(ierr.ErrInternal)
	}

	path := req.Endpoint()
	signature := c.signer.Sign(path, body)

	fields, callErr := doWithRetry(ctx, c.policy, c.logger, func(attemptCtx context.Context) (Fields, error) {
		return c.post(attemptCtx, path, body, signature)
	})

	c.record(ctx, transactionNumber, path, body, fields, callErr)

	if callErr != nil {
		return nil, callErr
	}
	return fields, nil
}

func (c *client) post(ctx context.Context, path string, body []byte, signature string) (Fields, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create gateway request").
			Mark(ierr.ErrInternal)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderSignature, signature)
	httpReq.Header.Set(HeaderMerchantID, c.cfg.Merchant.MerchantID)
	httpReq.Header.Set(HeaderStoreID, c.cfg.Merchant.StoreID)
	httpReq.Header.Set(HeaderTerminalID, c.cfg.Merchant.TerminalID)
	httpReq.Header.Set(HeaderAPIKeyID, c.cfg.Merchant.APIKeyID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Transport failure: worth a local retry under the same
		// transaction number.
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	fields, parseErr := ParseResponse(respBody)
	if parseErr != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, ierr.NewError("gateway returned an unreadable error response").
				WithHint("Payment could not be processed").
				WithReportableDetails(map[string]interface{}{
					"status_code": resp.StatusCode,
				}).
				Mark(ierr.ErrHTTPClient)
		}
		return nil, parseErr
	}

	// Declines arrive with non-2xx statuses on one backend and 200 plus a
	// decline code on the other; the response code decides, not the HTTP
	// status.
	return fields, nil
}

// record writes the certification entry. The recorder masks the body and
// must never raise an error that aborts the attempt.
func (c *client) record(ctx context.Context, transactionNumber, path string, body []byte, fields Fields, callErr error) {
	if c.recorder == nil {
		return
	}

	var requestBody map[string]interface{}
	_ = json.Unmarshal(body, &requestBody)

	outcome := "completed"
	if callErr != nil {
		outcome = "transport_failure"
	}

	responseFields := map[string]interface{}{}
	for k, v := range fields {
		responseFields[k] = v
	}

	c.recorder.Record(ctx, &audit.Record{
		TransactionID: transactionNumber,
		Method:        http.MethodPost,
		Endpoint:      path,
		// The signature and API credentials never enter the log.
		Headers: map[string]string{
			HeaderMerchantID: c.cfg.Merchant.MerchantID,
			HeaderStoreID:    c.cfg.Merchant.StoreID,
			HeaderTerminalID: c.cfg.Merchant.TerminalID,
		},
		RequestBody:  requestBody,
		ResponseBody: responseFields,
		Outcome:      outcome,
		Timestamp:    time.Now().UTC(),
	})
}
