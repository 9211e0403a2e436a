package audit

import (
	"regexp"
	"strings"
)

// Field-name classes driving redaction. Matching is case-insensitive on
// the final path segment of the key.
var (
	instrumentNumberKeys = []string{"number", "card_number", "account_number", "pan", "instrument_number"}
	securityCodeKeys     = []string{"cvc", "cvv", "cvv2", "security_code", "card_code"}
	expiryKeys           = []string{"expiry", "expiry_month", "expiry_year", "exp_month", "exp_year", "expiration"}
)

// cardNumberPattern matches instrument-number-like digit runs wherever
// they appear in free-form values, separators included.
var cardNumberPattern = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)

const redacted = "[REDACTED]"

// MaskBody recursively walks a decoded body and redacts anything that
// looks like instrument data: numbers keep only their last four
// characters, security codes and expiry are removed entirely. It returns
// a masked copy; the input is not modified.
func MaskBody(body map[string]interface{}) map[string]interface{} {
	if body == nil {
		return nil
	}
	masked := make(map[string]interface{}, len(body))
	for k, v := range body {
		masked[k] = maskValue(k, v)
	}
	return masked
}

func maskValue(key string, value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		masked := make(map[string]interface{}, len(v))
		for k, inner := range v {
			masked[k] = maskValue(k, inner)
		}
		return masked
	case []interface{}:
		masked := make([]interface{}, len(v))
		for i, inner := range v {
			masked[i] = maskValue(key, inner)
		}
		return masked
	case string:
		return maskString(key, v)
	default:
		// Numeric expiry fields arrive as numbers, not strings.
		if keyMatches(key, expiryKeys) || keyMatches(key, securityCodeKeys) {
			return redacted
		}
		return v
	}
}

func maskString(key, value string) string {
	switch {
	case keyMatches(key, securityCodeKeys), keyMatches(key, expiryKeys):
		return redacted
	case keyMatches(key, instrumentNumberKeys):
		return keepLastFour(value)
	default:
		// Instrument numbers can leak through free-form fields like
		// descriptions; pattern-match values regardless of key.
		return cardNumberPattern.ReplaceAllStringFunc(value, keepLastFour)
	}
}

func keyMatches(key string, names []string) bool {
	lower := strings.ToLower(key)
	for _, name := range names {
		if lower == name {
			return true
		}
	}
	return false
}

// keepLastFour masks all but the final four characters of a value.
func keepLastFour(value string) string {
	stripped := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, value)
	if len(stripped) <= 4 {
		return stripped
	}
	return strings.Repeat("*", len(stripped)-4) + stripped[len(stripped)-4:]
}
