package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// SyncLockKey is the advisory lock id shared by every sync process.
const SyncLockKey int64 = 0x6573_7461_7465

const unlockTimeout = 5 * time.Second

// AdvisoryLocker holds a session-level pg advisory lock on a dedicated
// connection for the duration of a run.
type AdvisoryLocker struct {
	db     *sqlx.DB
	key    int64
	logger *slog.Logger
}

func NewAdvisoryLocker(db *sqlx.DB, key int64, logger *slog.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{db: db, key: key, logger: logger}
}

func (l *AdvisoryLocker) TryLock(ctx context.Context) (func(), bool, error) {
	conn, err := l.db.Connx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("get connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRowxContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		_ = conn.Close()
		return nil, false, nil
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()

		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
			l.logger.Error("failed to release advisory lock, dropping connection", "error", err)
			// The lock lives as long as the session, so the connection must not go back to the pool.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		_ = conn.Close()
	}

	return unlock, true, nil
}
