package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fdc/internal/domain"
	"fdc/internal/engine"
	"fdc/internal/events"
)

// Repo is the SQLite mission store and unit directory.
type Repo struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

var ErrNotFound = errors.New("not found")

// ErrFireRecordRequired rejects an active status update that carries no lay.
var ErrFireRecordRequired = errors.New("status active requires fire, projectile and charge")

var (
	_ engine.MissionStore = Repo{}
	_ engine.Directory    = Repo{}
)

func New(db *sql.DB) Repo {
	return Repo{DB: db, Now: time.Now}
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Repo) stamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

func (r Repo) events() events.Writer {
	w := r.Events
	if w.Now == nil {
		w.Now = r.now
	}
	return w
}

// ListEvents returns the event log in id order.
func (r Repo) ListEvents(ctx context.Context, f events.Filter) ([]domain.Event, error) {
	return events.List(ctx, r.DB, f)
}

// LatestEventID returns the highest event id, 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
