package gateway

import (
	"github.com/samber/lo"
)

// Endpoints on the payment gateway.
const (
	EndpointSale     = "/api/v2/transactions/sale"
	EndpointRefund   = "/api/v2/transactions/refund"
	EndpointReversal = "/api/v2/transactions/reversal"
	EndpointTokenize = "/api/v2/tokens"
)

// Transaction type codes carried in the request body.
const (
	TransactionTypeSale     = "S"
	TransactionTypeRefund   = "R"
	TransactionTypeReversal = "V"
)

// RecurringIndicator distinguishes the first-ever recurring charge on a
// token from every subsequent one. Card-network rules require the
// distinction on every recurring call.
type RecurringIndicator string

const (
	RecurringFirst      RecurringIndicator = "first"
	RecurringSubsequent RecurringIndicator = "subsequent"
)

// Canonical response field names. Both response forms (JSON and markup
// fragment) are normalized onto these keys.
const (
	FieldResponseCode         = "response_code"
	FieldResponseMessage      = "response_message"
	FieldTransactionID        = "transaction_id"
	FieldNetworkTransactionID = "network_transaction_id"
	FieldTokenValue           = "token"
	FieldMaskedNumber         = "masked_number"
	FieldAVSResult            = "avs_result"
)

// Headers carried on every request.
const (
	HeaderSignature  = "X-Signature"
	HeaderMerchantID = "X-Merchant-ID"
	HeaderStoreID    = "X-Store-ID"
	HeaderTerminalID = "X-Terminal-ID"
	HeaderAPIKeyID   = "X-API-Key-ID"
)

// defaultApprovedCodes is the exact-match set of response codes recognized
// as an approval. Everything else is a decline, not an exception.
var defaultApprovedCodes = []string{"A01", "00", "000"}

// Known decline codes surfaced in ledger entries. Not exhaustive; anything
// outside the approved set declines.
const (
	CodeInsufficientFunds = "D05"
	CodeExpiredCard       = "D07"
	CodeDoNotHonor        = "D10"
	CodeInvalidInstrument = "E20"
)

// Fields is the canonical field map parsed from a gateway response.
type Fields map[string]string

func (f Fields) Get(key string) string {
	return f[key]
}

// ChargeResult is the business outcome of a gateway transaction. A decline
// is a result, never an error.
type ChargeResult struct {
	Approved             bool
	ResponseCode         string
	ResponseMessage      string
	TransactionID        string
	NetworkTransactionID string
	Fields               Fields
}

// TokenizeResult is the outcome of a tokenize-and-verify call.
type TokenizeResult struct {
	Approved             bool
	ResponseCode         string
	ResponseMessage      string
	TokenValue           string
	MaskedNumber         string
	TransactionID        string
	NetworkTransactionID string
	Fields               Fields
}

func approvedCode(code string, approved []string) bool {
	if len(approved) == 0 {
		approved = defaultApprovedCodes
	}
	return lo.Contains(approved, code)
}
