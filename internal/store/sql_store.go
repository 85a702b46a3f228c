package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Popie52/offlinesync/internal/clock"
	"github.com/Popie52/offlinesync/internal/model"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLActionStore implements ActionStore over database/sql. Both supported
// dialects share the same queries; only placeholders differ.
type SQLActionStore struct {
	db      *sql.DB
	dialect dialect
	clock   clock.Clock
}

func newSQLActionStore(db *sql.DB, d dialect, opts []Option) *SQLActionStore {
	o := buildOptions(opts)
	return &SQLActionStore{
		db:      db,
		dialect: d,
		clock:   o.clock,
	}
}

const actionColumns = `seq, id, kind, payload, status, priority, retry_count, created_at, completed_at`

func (s *SQLActionStore) Enqueue(ctx context.Context, kind model.Kind, payload string) (*model.Action, error) {
	a, err := newAction(s.clock, kind, payload)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO actions (id, kind, payload, status, priority, retry_count, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		RETURNING seq
	`),
		a.ID,
		string(a.Kind),
		a.Payload,
		string(a.Status),
		a.Priority,
		a.RetryCount,
		a.CreatedAt,
	).Scan(&a.Seq)
	if err != nil {
		return nil, fmt.Errorf("enqueue action: %w", err)
	}

	return a, nil
}

func (s *SQLActionStore) ListPending(ctx context.Context) ([]*model.Action, error) {
	return s.list(ctx, "list pending", `
		SELECT `+actionColumns+`
		FROM actions
		WHERE status = ?
		ORDER BY priority ASC, created_at ASC, seq ASC
	`, string(model.StatusPending))
}

func (s *SQLActionStore) ListCompleted(ctx context.Context) ([]*model.Action, error) {
	return s.list(ctx, "list completed", `
		SELECT `+actionColumns+`
		FROM actions
		WHERE status = ?
		ORDER BY completed_at DESC, seq DESC
	`, string(model.StatusCompleted))
}

func (s *SQLActionStore) ListAll(ctx context.Context) ([]*model.Action, error) {
	return s.list(ctx, "list all", `
		SELECT `+actionColumns+`
		FROM actions
		ORDER BY
			CASE WHEN status = ? THEN 0 ELSE 1 END,
			CASE WHEN status = ? THEN priority END ASC,
			CASE WHEN status = ? THEN created_at END ASC,
			CASE WHEN status = ? THEN seq END ASC,
			CASE WHEN status = ? THEN completed_at END DESC,
			CASE WHEN status = ? THEN seq END DESC
	`,
		string(model.StatusPending),
		string(model.StatusPending),
		string(model.StatusPending),
		string(model.StatusPending),
		string(model.StatusCompleted),
		string(model.StatusCompleted),
	)
}

// MarkCompleted only touches a pending row, so a second call finds nothing
// to update and leaves the first completed_at in place.
func (s *SQLActionStore) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE actions
		SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`),
		string(model.StatusCompleted),
		s.clock.NowMillis(),
		id,
		string(model.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark completed %s: %w", id, err)
	}
	return nil
}

func (s *SQLActionStore) IncrementRetry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE actions
		SET retry_count = retry_count + 1
		WHERE id = ? AND status = ?
	`),
		id,
		string(model.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("increment retry %s: %w", id, err)
	}
	return nil
}

func (s *SQLActionStore) RetryCountOf(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT retry_count FROM actions WHERE id = ?
	`), id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("retry count %s: %w", id, err)
	}
	return n, nil
}

func (s *SQLActionStore) Get(ctx context.Context, id string) (*model.Action, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+actionColumns+` FROM actions WHERE id = ?
	`), id)

	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return a, nil
}

func (s *SQLActionStore) Stats(ctx context.Context, maxRetry int) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? AND retry_count >= ? THEN 1 ELSE 0 END), 0)
		FROM actions
	`),
		string(model.StatusPending),
		string(model.StatusCompleted),
		string(model.StatusPending),
		maxRetry,
	).Scan(&st.Pending, &st.Completed, &st.Exhausted)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func (s *SQLActionStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the handle for migrations and tests.
func (s *SQLActionStore) DB() *sql.DB {
	return s.db
}

func (s *SQLActionStore) list(ctx context.Context, op, query string, args ...any) ([]*model.Action, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	actions := []*model.Action{}
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return actions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAction(row scanner) (*model.Action, error) {
	var (
		a           model.Action
		kind        string
		status      string
		completedAt sql.NullInt64
	)

	if err := row.Scan(
		&a.Seq,
		&a.ID,
		&kind,
		&a.Payload,
		&status,
		&a.Priority,
		&a.RetryCount,
		&a.CreatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	a.Kind = model.Kind(kind)
	a.Status = model.Status(status)
	if completedAt.Valid {
		ts := completedAt.Int64
		a.CompletedAt = &ts
	}
	return &a, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLActionStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
