/*
Copyright © 2024 John Dudmesh <john@dudmesh.co.uk>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package spool is a durable queue of encoded bulk items waiting to be sent
// to the graph server. It is backed by sqlite or mysql.
package spool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

var ErrUnsupportedDriver = errors.New("unsupported database driver")

type Item struct {
	Seq       int64        `db:"seq"`
	ID        string       `db:"id"`
	Kind      string       `db:"kind"`
	Payload   []byte       `db:"payload"`
	CreatedAt time.Time    `db:"created_at"`
	FlushedAt sql.NullTime `db:"flushed_at"`
}

type Store struct {
	db     *sqlx.DB
	driver string
	logger *slog.Logger
}

// Open connects to databaseURL, which is either sqlite3://<path or dsn> or
// mysql://<dsn>, and brings the schema up to date.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	driver, dsn, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s, err := New(db, driver, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an open database and runs the migrations for driver.
func New(db *sqlx.DB, driver string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	err := createSchema(db, driver)
	if err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{
		db:     db,
		driver: driver,
		logger: logger,
	}, nil
}

func parseURL(databaseURL string) (string, string, error) {
	driver, dsn, ok := strings.Cut(databaseURL, "://")
	if !ok || dsn == "" {
		return "", "", fmt.Errorf("parsing database url %q: expected driver://dsn", databaseURL)
	}

	switch driver {
	case DriverSQLite:
		return driver, dsn, nil
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parsing mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		return driver, cfg.FormatDSN(), nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
}

// Push stores one payload and returns its id.
func (s *Store) Push(ctx context.Context, kind string, payload []byte) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generating id: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		s.db.Rebind(`insert into spool_items (id, kind, payload, created_at) values (?, ?, ?, ?)`),
		id, kind, payload, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("inserting spool item: %w", err)
	}

	return id, nil
}

// Pending returns up to limit unflushed items, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]Item, error) {
	items := []Item{}
	err := s.db.SelectContext(ctx, &items,
		s.db.Rebind(`select seq, id, kind, payload, created_at, flushed_at
			from spool_items
			where flushed_at is null
			order by seq
			limit ?`),
		limit)
	if err != nil {
		return nil, fmt.Errorf("selecting pending items: %w", err)
	}
	return items, nil
}

// Count is the number of unflushed items.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `select count(*) from spool_items where flushed_at is null`)
	if err != nil {
		return 0, fmt.Errorf("counting pending items: %w", err)
	}
	return n, nil
}

func (s *Store) MarkFlushed(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	q, args, err := sqlx.In(`update spool_items set flushed_at = ? where id in (?)`, time.Now().UTC(), ids)
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(q), args...)
	if err != nil {
		return fmt.Errorf("marking items flushed: %w", err)
	}

	n, err := res.RowsAffected()
	if err == nil && int(n) != len(ids) {
		s.logger.Warn("some spool items were not found", "expected", len(ids), "updated", n)
	}

	return tx.Commit()
}

// Purge deletes items flushed before cutoff.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`delete from spool_items where flushed_at is not null and flushed_at < ?`),
		cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging spool: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging spool: %w", err)
	}

	if n > 0 {
		s.logger.Info("purged spool items", "count", n)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
