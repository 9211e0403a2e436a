package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/duespay/duespay/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(txn string) *Record {
	return &Record{
		TransactionID: txn,
		Method:        "POST",
		Endpoint:      "/api/v2/transactions/sale",
		RequestBody: map[string]interface{}{
			"number": "4111111111111111",
			"cvc":    "123",
			"amount": "29.99",
		},
		ResponseBody: map[string]interface{}{
			"response_code": "A01",
		},
		Outcome:   "completed",
		Timestamp: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRecordWritesDayPartitionedFile(t *testing.T) {
	dir := t.TempDir()
	cl := NewCertificationLogger(dir, "", 16, logger.NewNopLogger())

	cl.Record(context.Background(), testRecord("charge_1"))
	cl.Record(context.Background(), testRecord("charge_2"))

	path := filepath.Join(dir, "2026-03-01.jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "charge_1", rec.TransactionID)
}

func TestRecordMasksBeforePersisting(t *testing.T) {
	dir := t.TempDir()
	cl := NewCertificationLogger(dir, "", 16, logger.NewNopLogger())

	cl.Record(context.Background(), testRecord("charge_1"))

	data, err := os.ReadFile(filepath.Join(dir, "2026-03-01.jsonl"))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "4111111111111111")
	assert.NotContains(t, string(data), `"123"`)
	assert.Contains(t, string(data), "1111")
	assert.Contains(t, string(data), "[REDACTED]")
}

func TestRecordFallsBackWhenPrimaryUnwritable(t *testing.T) {
	primary := filepath.Join(t.TempDir(), "missing", "\x00bad")
	fallback := t.TempDir()
	cl := NewCertificationLogger(primary, fallback, 16, logger.NewNopLogger())

	cl.Record(context.Background(), testRecord("charge_1"))

	data, err := os.ReadFile(filepath.Join(fallback, "2026-03-01.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "charge_1")
}

func TestRecordNeverPanicsOnTotalFailure(t *testing.T) {
	cl := NewCertificationLogger(string([]byte{0}), "", 16, logger.NewNopLogger())

	assert.NotPanics(t, func() {
		cl.Record(context.Background(), testRecord("charge_1"))
		cl.Record(context.Background(), nil)
	})
}

func TestRecentNewestFirst(t *testing.T) {
	cl := NewCertificationLogger(t.TempDir(), "", 8, logger.NewNopLogger())

	for i := 1; i <= 3; i++ {
		cl.Record(context.Background(), testRecord(fmt.Sprintf("charge_%d", i)))
	}

	recent := cl.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "charge_3", recent[0].TransactionID)
	assert.Equal(t, "charge_2", recent[1].TransactionID)
}

func TestRecentRingWraps(t *testing.T) {
	cl := NewCertificationLogger(t.TempDir(), "", 4, logger.NewNopLogger())

	for i := 1; i <= 10; i++ {
		cl.Record(context.Background(), testRecord(fmt.Sprintf("charge_%d", i)))
	}

	recent := cl.Recent(100)
	require.Len(t, recent, 4, "ring bounds the buffer")
	assert.Equal(t, "charge_10", recent[0].TransactionID)
	assert.Equal(t, "charge_7", recent[3].TransactionID)
}

func TestRecordAppendOnly(t *testing.T) {
	dir := t.TempDir()
	cl := NewCertificationLogger(dir, "", 16, logger.NewNopLogger())

	cl.Record(context.Background(), testRecord("charge_1"))
	cl.Record(context.Background(), testRecord("charge_2"))
	cl.Record(context.Background(), testRecord("charge_3"))

	f, err := os.Open(filepath.Join(dir, "2026-03-01.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var order []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		order = append(order, rec.TransactionID)
	}
	assert.Equal(t, []string{"charge_1", "charge_2", "charge_3"}, order)
}
