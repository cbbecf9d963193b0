package store

import (
	"context"
	"time"
)

// DailyStats summarizes activity since the start of a day
type DailyStats struct {
	Since      time.Time
	Discovered int
	Approved   int
	Posted     int
}

// CountApprovedSince returns the number of approvals recorded at or after t.
func (s *Store) CountApprovedSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM approvals WHERE approved_at >= ?`, ts(t)).Scan(&n)
	return n, err
}

// CountApprovedLastHour returns the number of approvals in the past hour.
func (s *Store) CountApprovedLastHour(ctx context.Context) (int, error) {
	return s.CountApprovedSince(ctx, s.now().Add(-time.Hour))
}

// CountApprovedToday returns the number of approvals since local midnight.
func (s *Store) CountApprovedToday(ctx context.Context, loc *time.Location) (int, error) {
	return s.CountApprovedSince(ctx, StartOfDay(s.now(), loc))
}

// Stats counts discovered posts, approvals and completed posts since t.
func (s *Store) Stats(ctx context.Context, since time.Time) (DailyStats, error) {
	st := DailyStats{Since: since}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM posts WHERE discovered_at >= ?1),
			(SELECT COUNT(*) FROM approvals WHERE approved_at >= ?1),
			(SELECT COUNT(*) FROM approvals WHERE posted_at IS NOT NULL AND posted_at >= ?1)
	`, ts(since)).Scan(&st.Discovered, &st.Approved, &st.Posted)
	return st, err
}

// StartOfDay returns midnight of t's day in loc. A nil loc means local time.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
