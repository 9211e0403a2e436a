package types

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	UUID_PREFIX_PAYMENT_TOKEN    = "tok"
	UUID_PREFIX_BILLING_SCHEDULE = "sched"
	UUID_PREFIX_BILLING_ATTEMPT  = "attempt"
	UUID_PREFIX_SUBSCRIPTION     = "sub"
	UUID_PREFIX_SUBSCRIBER       = "mbr"
	UUID_PREFIX_WEBHOOK_EVENT    = "evt"
	UUID_PREFIX_REQUEST          = "req"
	UUID_PREFIX_AUDIT_RECORD     = "cert"
)

// GenerateUUID returns a lexicographically sortable unique identifier.
func GenerateUUID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
}

// GenerateUUIDWithPrefix returns a prefixed unique identifier, e.g.
// sched_01JD3EXAMPLE.
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return prefix + "_" + GenerateUUID()
}
