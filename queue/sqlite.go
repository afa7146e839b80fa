package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-automate"
	_ "modernc.org/sqlite"
)

const (
	SQLiteDriver       = "sqlite"
	DefaultSQLiteTable = "automate_queue"
)

// SQLite is a Queue stored in a SQLite table. Times are unix nanoseconds.
type SQLite struct {
	db     *sql.DB
	table  string
	now    func() time.Time
	schema sync.Once
	err    error
}

// OpenSQLite opens dsn with the modernc driver.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open(SQLiteDriver, dsn)
	if err != nil {
		return nil, automate.NewError(automate.ErrQueueSubmitFailed, "open sqlite queue", err, map[string]any{"dsn": dsn})
	}
	// a single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)
	return db, nil
}

func NewSQLite(db *sql.DB, table string) *SQLite {
	if strings.TrimSpace(table) == "" {
		table = DefaultSQLiteTable
	}
	return &SQLite{db: db, table: table, now: time.Now}
}

var _ Queue = (*SQLite)(nil)

func (q *SQLite) ensureSchema(ctx context.Context) error {
	q.schema.Do(func() {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			deliver_at INTEGER NOT NULL,
			server_guid TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			zone TEXT NOT NULL DEFAULT '',
			timeout_ns INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			lease_owner TEXT NOT NULL DEFAULT '',
			lease_until INTEGER NOT NULL DEFAULT 0
		)`, q.table)
		if _, err := q.db.ExecContext(ctx, ddl); err != nil {
			q.err = err
			return
		}
		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_deliver_at ON %s (deliver_at)`, q.table, q.table)
		_, q.err = q.db.ExecContext(ctx, idx)
	})
	return q.err
}

func (q *SQLite) Submit(ctx context.Context, s Submission) (Submission, error) {
	if q == nil || q.db == nil {
		return Submission{}, errors.New("sqlite queue not configured")
	}
	if err := q.ensureSchema(ctx); err != nil {
		return Submission{}, err
	}
	s = Normalize(s, q.now())
	stmt := fmt.Sprintf(`INSERT INTO %s
		(id, payload, deliver_at, server_guid, role, zone, timeout_ns, created_at, attempts, lease_owner, lease_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, q.table)
	_, err := q.db.ExecContext(ctx, stmt,
		s.ID,
		s.Payload,
		s.DeliverAt.UnixNano(),
		s.ServerGUID,
		s.Role,
		s.Zone,
		int64(s.Timeout),
		s.CreatedAt.UnixNano(),
		s.Attempts,
		s.LeaseOwner,
		unixNano(s.LeaseUntil),
	)
	if err != nil {
		return Submission{}, err
	}
	return s, nil
}

func (q *SQLite) Claim(ctx context.Context, filter ClaimFilter) ([]Submission, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("sqlite queue not configured")
	}
	if err := q.ensureSchema(ctx); err != nil {
		return nil, err
	}
	filter = filter.normalize()
	now := filter.Now.UnixNano()

	where := `deliver_at <= ? AND lease_until <= ?
		AND (server_guid = '' OR server_guid = ?)
		AND (zone = '' OR zone = ?)`
	args := []any{now, now, filter.ServerGUID, filter.Zone}
	if len(filter.Roles) > 0 {
		marks := make([]string, len(filter.Roles))
		for i, r := range filter.Roles {
			marks[i] = "?"
			args = append(args, strings.ToLower(r))
		}
		where += " AND (role = '' OR lower(role) IN (" + strings.Join(marks, ", ") + "))"
	} else {
		where += " AND role = ''"
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY deliver_at ASC, created_at ASC, id ASC LIMIT ?`,
		sqliteColumns, q.table, where)
	rows, err := tx.QueryContext(ctx, query, append(args, filter.Limit)...)
	if err != nil {
		return nil, err
	}
	due, err := scanSubmissions(rows)
	if err != nil {
		return nil, err
	}

	update := fmt.Sprintf(`UPDATE %s SET attempts = ?, lease_owner = ?, lease_until = ? WHERE id = ? AND lease_until <= ?`, q.table)
	claimed := make([]Submission, 0, len(due))
	for _, s := range due {
		s = filter.lease(s)
		res, err := tx.ExecContext(ctx, update, s.Attempts, s.LeaseOwner, s.LeaseUntil.UnixNano(), s.ID, now)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		claimed = append(claimed, s)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	tx = nil
	return claimed, nil
}

func (q *SQLite) Ack(ctx context.Context, id string) error {
	if q == nil || q.db == nil {
		return errors.New("sqlite queue not configured")
	}
	if err := q.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, q.table), id)
	return err
}

func (q *SQLite) Pending(ctx context.Context) ([]Submission, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("sqlite queue not configured")
	}
	if err := q.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := q.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY deliver_at ASC, created_at ASC, id ASC`, sqliteColumns, q.table))
	if err != nil {
		return nil, err
	}
	return scanSubmissions(rows)
}

const sqliteColumns = `id, payload, deliver_at, server_guid, role, zone, timeout_ns, created_at, attempts, lease_owner, lease_until`

func scanSubmissions(rows *sql.Rows) ([]Submission, error) {
	defer rows.Close()
	out := make([]Submission, 0)
	for rows.Next() {
		var (
			s                                Submission
			deliverAt, createdAt, leaseUntil int64
			timeout                          int64
		)
		if err := rows.Scan(
			&s.ID,
			&s.Payload,
			&deliverAt,
			&s.ServerGUID,
			&s.Role,
			&s.Zone,
			&timeout,
			&createdAt,
			&s.Attempts,
			&s.LeaseOwner,
			&leaseUntil,
		); err != nil {
			return nil, err
		}
		s.DeliverAt = time.Unix(0, deliverAt).UTC()
		s.CreatedAt = time.Unix(0, createdAt).UTC()
		s.Timeout = time.Duration(timeout)
		if leaseUntil > 0 {
			s.LeaseUntil = time.Unix(0, leaseUntil).UTC()
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
