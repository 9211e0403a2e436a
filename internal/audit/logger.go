package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/duespay/duespay/internal/logger"
)

// Record is one certification entry, keyed by transaction id, for a single
// gateway interaction.
type Record struct {
	TransactionID string                 `json:"transaction_id"`
	Method        string                 `json:"method"`
	Endpoint      string                 `json:"endpoint"`
	Headers       map[string]string      `json:"headers,omitempty"`
	RequestBody   map[string]interface{} `json:"request_body,omitempty"`
	ResponseBody  map[string]interface{} `json:"response_body,omitempty"`
	Outcome       string                 `json:"outcome"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Recorder persists certification records. Implementations must never
// return an error that could abort a billing attempt.
type Recorder interface {
	Record(ctx context.Context, rec *Record)
	// Recent returns up to n of the most recent records, newest first.
	Recent(n int) []*Record
}

// CertificationLogger is the append-only, day-partitioned certification
// log with a bounded in-memory ring of recent records. If the primary
// directory is not writable it falls back to the secondary one.
type CertificationLogger struct {
	dir         string
	fallbackDir string
	logger      *logger.Logger

	mu       sync.Mutex
	ring     []*Record
	ringNext int
	ringFull bool
	warned   bool
}

// NewCertificationLogger creates the certification logger. ringSize bounds
// the in-memory buffer; values below 1 fall back to 64.
func NewCertificationLogger(dir, fallbackDir string, ringSize int, log *logger.Logger) *CertificationLogger {
	if ringSize < 1 {
		ringSize = 64
	}
	return &CertificationLogger{
		dir:         dir,
		fallbackDir: fallbackDir,
		logger:      log,
		ring:        make([]*Record, ringSize),
	}
}

// Record masks and persists one entry. Failures are swallowed after a
// single warning; certification logging never fails a charge.
func (c *CertificationLogger) Record(ctx context.Context, rec *Record) {
	if rec == nil {
		return
	}

	masked := *rec
	masked.RequestBody = MaskBody(rec.RequestBody)
	masked.ResponseBody = MaskBody(rec.ResponseBody)
	if masked.Timestamp.IsZero() {
		masked.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	c.ring[c.ringNext] = &masked
	c.ringNext++
	if c.ringNext == len(c.ring) {
		c.ringNext = 0
		c.ringFull = true
	}
	c.mu.Unlock()

	line, err := json.Marshal(&masked)
	if err != nil {
		c.warnOnce("failed to marshal certification record", err)
		return
	}
	line = append(line, '\n')

	if err := c.appendTo(c.dir, masked.Timestamp, line); err != nil {
		c.warnOnce("primary certification location not writable, using fallback", err)
		if c.fallbackDir == "" {
			return
		}
		if err := c.appendTo(c.fallbackDir, masked.Timestamp, line); err != nil {
			c.warnOnce("fallback certification location not writable", err)
		}
	}
}

// appendTo appends one line to the day partition under dir.
func (c *CertificationLogger) appendTo(dir string, ts time.Time, line []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, ts.UTC().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(line)
	return err
}

// Recent returns up to n records, newest first.
func (c *CertificationLogger) Recent(n int) []*Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.ringNext
	if c.ringFull {
		size = len(c.ring)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	out := make([]*Record, 0, n)
	idx := c.ringNext - 1
	for len(out) < n {
		if idx < 0 {
			idx = len(c.ring) - 1
		}
		if c.ring[idx] != nil {
			out = append(out, c.ring[idx])
		}
		idx--
	}
	return out
}

func (c *CertificationLogger) warnOnce(msg string, err error) {
	c.mu.Lock()
	already := c.warned
	c.warned = true
	c.mu.Unlock()
	if already {
		return
	}
	if c.logger != nil {
		c.logger.Warnw(msg, "error", err)
	}
}
