package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Scope namespaces generated keys so different operations can never
// collide on the same parameters.
type Scope string

const (
	// ScopeCharge keys one recurring charge per (schedule, billing period).
	// A timed-out request resubmitted under the same key is indeterminate
	// at the gateway, never a second charge.
	ScopeCharge Scope = "charge"
	// ScopeTokenize keys the enrollment tokenize-and-first-charge call.
	ScopeTokenize Scope = "tokenize"
)

// Generator produces deterministic idempotency keys.
type Generator interface {
	GenerateKey(scope Scope, params map[string]interface{}) string
}

type generator struct{}

// NewGenerator returns the default SHA-256 based generator.
func NewGenerator() Generator {
	return &generator{}
}

// GenerateKey builds scope:key1=value1:key2=value2:... with sorted keys and
// hashes it, so the same inputs always yield the same key regardless of map
// iteration order.
func (g *generator) GenerateKey(scope Scope, params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(scope))
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(":%s=%v", k, params[k]))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return string(scope) + "_" + hex.EncodeToString(sum[:16])
}
