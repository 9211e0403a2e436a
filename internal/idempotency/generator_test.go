package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKeyDeterministic(t *testing.T) {
	g := NewGenerator()

	params := map[string]interface{}{
		"schedule_id": "sched_123",
		"period":      "2026-03-01",
	}

	first := g.GenerateKey(ScopeCharge, params)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, g.GenerateKey(ScopeCharge, params))
	}
}

func TestGenerateKeyIgnoresInsertionOrder(t *testing.T) {
	g := NewGenerator()

	a := g.GenerateKey(ScopeCharge, map[string]interface{}{
		"schedule_id": "sched_123",
		"period":      "2026-03-01",
	})
	b := g.GenerateKey(ScopeCharge, map[string]interface{}{
		"period":      "2026-03-01",
		"schedule_id": "sched_123",
	})
	assert.Equal(t, a, b)
}

func TestGenerateKeyVariesByInput(t *testing.T) {
	g := NewGenerator()

	base := g.GenerateKey(ScopeCharge, map[string]interface{}{
		"schedule_id": "sched_123",
		"period":      "2026-03-01",
	})
	otherPeriod := g.GenerateKey(ScopeCharge, map[string]interface{}{
		"schedule_id": "sched_123",
		"period":      "2026-04-01",
	})
	otherSchedule := g.GenerateKey(ScopeCharge, map[string]interface{}{
		"schedule_id": "sched_456",
		"period":      "2026-03-01",
	})

	assert.NotEqual(t, base, otherPeriod)
	assert.NotEqual(t, base, otherSchedule)
}

func TestGenerateKeyVariesByScope(t *testing.T) {
	g := NewGenerator()
	params := map[string]interface{}{"subscriber_id": "mbr_1"}

	charge := g.GenerateKey(ScopeCharge, params)
	tokenize := g.GenerateKey(ScopeTokenize, params)

	assert.NotEqual(t, charge, tokenize)
	assert.True(t, strings.HasPrefix(charge, "charge_"))
	assert.True(t, strings.HasPrefix(tokenize, "tokenize_"))
}
