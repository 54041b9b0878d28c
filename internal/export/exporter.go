// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package export copies entity values from an AMPL session into a PostgreSQL table
// over a pgx connection pool. Each export is tagged with a fresh run id so repeated
// solves can be compared in SQL.
package export

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"iampl/cli/internal/display"
	"iampl/cli/internal/errors"
	"iampl/cli/internal/logging"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pterm/pterm"
)

var reIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// columns are written in this order by CopyFrom.
var columns = []string{"run_id", "entity", "class", "key", "num", "txt", "exported_at"}

// TableIdent parses "table" or "schema.table" into a quoted identifier.
func TableIdent(name string) (pgx.Identifier, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return nil, errors.Newf(errors.ConfigInvalid, "table %q has too many dots", name)
	}
	for _, p := range parts {
		if !reIdent.MatchString(p) {
			return nil, errors.Newf(errors.ConfigInvalid, "table %q is not a plain identifier", name)
		}
	}
	return pgx.Identifier(parts), nil
}

// Source yields values for export. *driver.Driver satisfies it.
type Source interface {
	ValueOf(ctx context.Context, name string, key display.Key) (display.Result, error)
}

// Exporter writes rows into one table.
type Exporter struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
	log   *pterm.Logger
}

// Open connects to dsn and checks the server is reachable.
func Open(ctx context.Context, dsn, table string, log *pterm.Logger) (*Exporter, error) {
	ident, err := TableIdent(table)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Discard()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ExportFailed, "parsing DSN", fmt.Errorf("%s", logging.Mask(err.Error())))
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ExportFailed, "creating connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.ExportFailed, "connecting to "+cfg.ConnConfig.Host, err)
	}
	return &Exporter{pool: pool, table: ident, log: log}, nil
}

// Close releases the pool.
func (e *Exporter) Close() { e.pool.Close() }

// EnsureTable creates the destination table if it does not exist.
func (e *Exporter) EnsureTable(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + e.table.Sanitize() + ` (
	run_id uuid NOT NULL,
	entity text NOT NULL,
	class text NOT NULL,
	key text[] NOT NULL,
	num double precision,
	txt text,
	exported_at timestamptz NOT NULL
)`
	if _, err := e.pool.Exec(ctx, ddl); err != nil {
		return errors.Wrap(errors.ExportFailed, "creating table "+e.table.Sanitize(), err)
	}
	return nil
}

// Write copies rows in one COPY and returns the number written.
func (e *Exporter) Write(ctx context.Context, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{
			pgtype.UUID{Bytes: r.RunID, Valid: true},
			r.Entity,
			r.Class,
			r.Key,
			r.Num,
			r.Text,
			r.ExportedAt,
		}
	}
	n, err := e.pool.CopyFrom(ctx, e.table, columns, pgx.CopyFromRows(values))
	if err != nil {
		return n, errors.Wrap(errors.ExportFailed, "copying rows", err)
	}
	e.log.Debug("exported rows", e.log.Args("table", e.table.Sanitize(), "rows", n))
	return n, nil
}

// Item names one entity to export.
type Item struct {
	Name  string
	Class string
}

// Summary describes a finished export.
type Summary struct {
	RunID    uuid.UUID
	Entities int
	Rows     int64
}

// Export reads every item from src and writes all of them under one run id.
func (e *Exporter) Export(ctx context.Context, src Source, items []Item) (Summary, error) {
	sum := Summary{RunID: uuid.New()}
	at := time.Now().UTC()
	var rows []Row
	for _, it := range items {
		res, err := src.ValueOf(ctx, it.Name, nil)
		if err != nil {
			return sum, err
		}
		rows = append(rows, Flatten(sum.RunID, it.Name, it.Class, res, at)...)
		sum.Entities++
	}
	n, err := e.Write(ctx, rows)
	sum.Rows = n
	return sum, err
}

// ServerInfo describes the connected database.
type ServerInfo struct {
	Version  string
	Database string
	User     string
	Host     string
	Port     uint16
}

// Info queries server details for `iampl dbinfo`.
func (e *Exporter) Info(ctx context.Context) (ServerInfo, error) {
	cc := e.pool.Config().ConnConfig
	info := ServerInfo{Host: cc.Host, Port: cc.Port}
	err := e.pool.QueryRow(ctx, `SELECT version(), current_database(), current_user`).
		Scan(&info.Version, &info.Database, &info.User)
	if err != nil {
		return info, errors.Wrap(errors.ExportFailed, "querying server info", err)
	}
	return info, nil
}

// Count returns the number of rows already exported, or 0 when the table is missing.
func (e *Exporter) Count(ctx context.Context) (int64, error) {
	var exists bool
	if err := e.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, e.table.Sanitize()).Scan(&exists); err != nil {
		return 0, errors.Wrap(errors.ExportFailed, "checking table", err)
	}
	if !exists {
		return 0, nil
	}
	var n int64
	if err := e.pool.QueryRow(ctx, `SELECT count(*) FROM `+e.table.Sanitize()).Scan(&n); err != nil {
		return 0, errors.Wrap(errors.ExportFailed, "counting rows", err)
	}
	return n, nil
}
