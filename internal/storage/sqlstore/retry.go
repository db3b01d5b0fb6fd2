package sqlstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/workgraph/internal/storage"
)

// newTxBackoff returns a fresh backoff policy. BackOff implementations are
// stateful, so every RunInTransaction call gets its own.
func (s *Store) newTxBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 25 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = s.cfg.MaxElapsed
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.MaxRetries)), ctx)
}

// isRetryableError returns true if err is a transient failure after which
// re-running the whole transaction can succeed.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, storage.ErrGraphConflict) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		// SQLite
		"database is locked",
		"sqlite_busy",
		// MySQL 1213 / Dolt 1105
		"deadlock found",
		"try restarting transaction",
		"serialization failure",
		// Connection blips
		"driver: bad connection",
		"invalid connection",
		"connection reset",
		"broken pipe",
		"lost connection",
		"gone away",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
