// Package audit records best-effort, append-only action entries for instances.
//
// Entries go through a Sink. The default TxSink writes into the caller's
// transaction so the entry commits or rolls back with the action it describes.
// JSONLSink mirrors entries to a local file, one JSON object per line, once
// their transaction has committed.
// Recorder wraps a sink and never lets a sink failure fail the caller.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/steveyegge/workgraph/internal/storage"
	"github.com/steveyegge/workgraph/internal/types"
)

// Sink receives audit entries.
type Sink interface {
	Record(ctx context.Context, tx storage.Transaction, entry *types.AuditEntry) error
}

// TxSink appends entries through the enclosing storage transaction.
type TxSink struct{}

// Record implements Sink.
func (TxSink) Record(ctx context.Context, tx storage.Transaction, entry *types.AuditEntry) error {
	if tx == nil {
		return errors.New("audit: no transaction")
	}
	return tx.AppendAudit(ctx, entry)
}

// Committer is implemented by sinks that hold entries until the transaction
// they were recorded in commits.
type Committer interface {
	// Commit releases the entries recorded under tx.
	Commit(tx storage.Transaction) error
	// Discard drops the entries recorded under tx.
	Discard(tx storage.Transaction)
}

// JSONLSink appends entries to a JSONL file. Entries recorded inside a
// transaction are held until Recorder.Run reports that the transaction
// committed, so rolled-back and retried attempts never reach the file.
// Entries recorded without a transaction are written immediately.
type JSONLSink struct {
	Path string

	mu      sync.Mutex
	pending map[storage.Transaction][][]byte
}

// Record implements Sink.
func (s *JSONLSink) Record(_ context.Context, tx storage.Transaction, entry *types.AuditEntry) error {
	if s.Path == "" {
		return errors.New("audit: jsonl path is empty")
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx == nil {
		return s.write([][]byte{line})
	}
	if s.pending == nil {
		s.pending = make(map[storage.Transaction][][]byte)
	}
	s.pending[tx] = append(s.pending[tx], line)
	return nil
}

// Commit implements Committer.
func (s *JSONLSink) Commit(tx storage.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.pending[tx]
	delete(s.pending, tx)
	if len(lines) == 0 {
		return nil
	}
	return s.write(lines)
}

// Discard implements Committer.
func (s *JSONLSink) Discard(tx storage.Transaction) {
	s.mu.Lock()
	delete(s.pending, tx)
	s.mu.Unlock()
}

// write appends lines to the file. s.mu must be held.
func (s *JSONLSink) write(lines [][]byte) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o750); err != nil {
		return fmt.Errorf("audit: create dir: %w", err)
	}
	// #nosec G304 -- path comes from configuration
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open: %w", err)
	}
	var buf []byte
	for _, line := range lines {
		buf = append(append(buf, line...), '\n')
	}
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("audit: write: %w", err)
	}
	return f.Close()
}

// Multi fans an entry out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) Record(ctx context.Context, tx storage.Transaction, entry *types.AuditEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, tx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiSink) Commit(tx storage.Transaction) error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(Committer); ok {
			if err := c.Commit(tx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m multiSink) Discard(tx storage.Transaction) {
	for _, s := range m {
		if c, ok := s.(Committer); ok {
			c.Discard(tx)
		}
	}
}

// Recorder is the fire-and-forget front of a Sink.
type Recorder struct {
	sink Sink
	log  *slog.Logger
}

// NewRecorder returns a Recorder over sink. A nil sink defaults to TxSink and
// a nil logger to slog.Default().
func NewRecorder(sink Sink, log *slog.Logger) *Recorder {
	if sink == nil {
		sink = TxSink{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{sink: sink, log: log}
}

// Record writes one entry. Failures are logged at warn level and swallowed.
func (r *Recorder) Record(ctx context.Context, tx storage.Transaction, tc types.TenantContext, instanceID string, action types.AuditAction, details map[string]any) {
	entry := &types.AuditEntry{
		InstanceID: instanceID,
		TenantID:   tc.TenantID,
		Actor:      tc.UserID,
		Action:     action,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.sink.Record(ctx, tx, entry); err != nil {
		r.log.Warn("audit record failed",
			"instance", instanceID,
			"action", string(action),
			"error", err)
	}
}

// Run executes fn through store.RunInTransaction. When the sink holds entries
// until commit, the entries of the attempt that committed are released and
// those of every rolled-back attempt are dropped. A failed release is logged
// and swallowed like any other sink failure.
func (r *Recorder) Run(ctx context.Context, store storage.Storage, fn func(tx storage.Transaction) error) error {
	c, ok := r.sink.(Committer)
	if !ok {
		return store.RunInTransaction(ctx, fn)
	}

	var attempts []storage.Transaction
	var last storage.Transaction
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		attempts = append(attempts, tx)
		last = nil
		if err := fn(tx); err != nil {
			return err
		}
		last = tx
		return nil
	})
	for _, tx := range attempts {
		if err == nil && tx == last {
			continue
		}
		c.Discard(tx)
	}
	if err == nil && last != nil {
		if cerr := c.Commit(last); cerr != nil {
			r.log.Warn("audit commit failed", "error", cerr)
		}
	}
	return err
}
