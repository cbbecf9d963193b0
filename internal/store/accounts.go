package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ibeckermayer/replyscout/internal/types"
)

// UpsertWatch adds or updates a watched account from configuration. The
// priority and cadence are overwritten; last_checked_at is kept.
func (s *Store) UpsertWatch(ctx context.Context, w types.AccountWatch) error {
	w = normalizeWatch(w)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_checks (handle, priority, check_every_hours)
		VALUES (?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			priority = excluded.priority,
			check_every_hours = excluded.check_every_hours
	`, w.Handle, string(w.Priority), w.CheckEveryHours)
	return err
}

// AddWatch adds an account if it is not already watched. added is false when
// the handle was present.
func (s *Store) AddWatch(ctx context.Context, w types.AccountWatch) (added bool, err error) {
	w = normalizeWatch(w)
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO account_checks (handle, priority, check_every_hours)
		VALUES (?, ?, ?)
	`, w.Handle, string(w.Priority), w.CheckEveryHours)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Watches returns every watched account in the order they were added.
func (s *Store) Watches(ctx context.Context) ([]types.AccountWatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT handle, last_checked_at, priority, check_every_hours
		FROM account_checks ORDER BY rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var watches []types.AccountWatch
	for rows.Next() {
		var (
			w        types.AccountWatch
			checked  sql.NullTime
			priority string
		)
		if err := rows.Scan(&w.Handle, &checked, &priority, &w.CheckEveryHours); err != nil {
			return nil, err
		}
		w.Priority = types.Priority(priority)
		if checked.Valid {
			t := checked.Time
			w.LastCheckedAt = &t
		}
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

// TouchWatch records a successful poll of handle at now.
func (s *Store) TouchWatch(ctx context.Context, handle string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE account_checks SET last_checked_at = ? WHERE handle = ?`,
		ts(now), strings.TrimPrefix(handle, "@"))
	return err
}

func normalizeWatch(w types.AccountWatch) types.AccountWatch {
	w.Handle = strings.TrimPrefix(strings.TrimSpace(w.Handle), "@")
	if w.Priority == "" {
		w.Priority = types.DefaultWatchPriority
	}
	if w.CheckEveryHours <= 0 {
		w.CheckEveryHours = types.DefaultCheckEveryHours
	}
	return w
}
