package gateway

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	ierr "github.com/duespay/duespay/internal/errors"
)

// The gateway answers in one of two shapes depending on which of its
// backends served the call: a JSON object, or a flat list of key/value
// fields embedded in a markup fragment:
//
//	<response>
//	  <field name="response_code">A01</field>
//	  <field name="transaction_id">988271</field>
//	</response>
//
// ParseResponse normalizes whichever form arrives into one canonical
// field map.
func ParseResponse(body []byte) (Fields, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ierr.NewError("empty gateway response").
			WithHint("The payment gateway returned an empty response").
			Mark(ierr.ErrHTTPClient)
	}

	if trimmed[0] == '{' {
		return parseJSONResponse(trimmed)
	}
	if trimmed[0] == '<' {
		return parseMarkupResponse(trimmed)
	}

	return nil, ierr.NewError("unrecognized gateway response format").
		WithHint("The payment gateway returned a malformed response").
		WithReportableDetails(map[string]interface{}{
			"leading_byte": string(trimmed[0]),
		}).
		Mark(ierr.ErrHTTPClient)
}

func parseJSONResponse(body []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, ierr.WithError(err).
			WithHint("The payment gateway returned malformed JSON").
			Mark(ierr.ErrHTTPClient)
	}

	fields := make(Fields, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			fields[normalizeKey(k)] = val
		case json.Number:
			fields[normalizeKey(k)] = val.String()
		case bool:
			fields[normalizeKey(k)] = fmt.Sprintf("%t", val)
		case nil:
			// Skip nulls; absent and null are equivalent here.
		default:
			// Nested values are not part of the flat contract; keep the
			// raw JSON so nothing is silently dropped.
			b, err := json.Marshal(val)
			if err == nil {
				fields[normalizeKey(k)] = string(b)
			}
		}
	}
	return fields, nil
}

type markupField struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type markupResponse struct {
	Fields []markupField `xml:"field"`
}

func parseMarkupResponse(body []byte) (Fields, error) {
	var resp markupResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, ierr.WithError(err).
			WithHint("The payment gateway returned a malformed markup response").
			Mark(ierr.ErrHTTPClient)
	}
	if len(resp.Fields) == 0 {
		return nil, ierr.NewError("markup response carries no fields").
			WithHint("The payment gateway returned an empty markup response").
			Mark(ierr.ErrHTTPClient)
	}

	fields := make(Fields, len(resp.Fields))
	for _, f := range resp.Fields {
		if f.Name == "" {
			continue
		}
		fields[normalizeKey(f.Name)] = strings.TrimSpace(f.Value)
	}
	return fields, nil
}

// normalizeKey maps the gateway's mixed key spellings (camelCase on the
// JSON backend, snake_case in markup) onto the canonical snake_case names.
func normalizeKey(key string) string {
	var b strings.Builder
	for i, r := range key {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// chargeResultFromFields interprets the canonical field map. Approval is an
// exact match against the approved code set; everything else is a decline.
func chargeResultFromFields(fields Fields, approvedCodes []string) *ChargeResult {
	code := fields.Get(FieldResponseCode)
	return &ChargeResult{
		Approved:             approvedCode(code, approvedCodes),
		ResponseCode:         code,
		ResponseMessage:      fields.Get(FieldResponseMessage),
		TransactionID:        fields.Get(FieldTransactionID),
		NetworkTransactionID: fields.Get(FieldNetworkTransactionID),
		Fields:               fields,
	}
}

func tokenizeResultFromFields(fields Fields, approvedCodes []string) *TokenizeResult {
	code := fields.Get(FieldResponseCode)
	return &TokenizeResult{
		Approved:             approvedCode(code, approvedCodes),
		ResponseCode:         code,
		ResponseMessage:      fields.Get(FieldResponseMessage),
		TokenValue:           fields.Get(FieldTokenValue),
		MaskedNumber:         fields.Get(FieldMaskedNumber),
		TransactionID:        fields.Get(FieldTransactionID),
		NetworkTransactionID: fields.Get(FieldNetworkTransactionID),
		Fields:               fields,
	}
}
