// Package store keeps the execution history in a sqlite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyFinished = errors.New("already finished")
)

const StateRunning = "running"

type Execution struct {
	UUID          string
	Image         string
	State         string
	ExitCode      *int
	FailureReason *string
	Started       time.Time
	Stopped       *time.Time
}

type ExecutionRow struct {
	Execution
	ID int
}

func (e ExecutionRow) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "uuid: %q, image: %q, state: %q", e.UUID, e.Image, e.State)
	if e.ExitCode != nil {
		fmt.Fprintf(&sb, ", exit_code: %d", *e.ExitCode)
	} else {
		sb.WriteString(", exit_code: nil")
	}
	if e.FailureReason != nil {
		fmt.Fprintf(&sb, ", failure_reason: %q", *e.FailureReason)
	} else {
		sb.WriteString(", failure_reason: nil")
	}
	return sb.String()
}

// Store records executions. It satisfies executor.Recorder.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and makes sure the schema
// exists.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := InitDB(ctx, path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func InitDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			image TEXT NOT NULL,
			state TEXT NOT NULL,
			exit_code INTEGER DEFAULT NULL,
			failure_reason TEXT DEFAULT NULL,
			started INTEGER NOT NULL,
			stopped INTEGER DEFAULT NULL
		)`,
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Start persists that an execution identified by uuid is running. Starting a
// running execution again is a no-op, a finished one returns
// ErrAlreadyFinished.
func (s *Store) Start(ctx context.Context, uuid, image string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx, uuid)

	var state string
	row := tx.QueryRowContext(ctx,
		`SELECT state FROM executions WHERE uuid=?`, uuid,
	)
	err = row.Scan(&state)
	switch {
	case err == nil && state == StateRunning:
		return nil
	case err == nil:
		return ErrAlreadyFinished
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO executions (uuid, image, state, started) VALUES (?,?,?,?);`,
		uuid, image, StateRunning, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("executing sql insert failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// Finish stores the outcome of a running execution. Empty reason is stored
// as NULL.
func (s *Store) Finish(ctx context.Context, uuid, state string, exitCode int, reason string) error {
	if state == StateRunning {
		return fmt.Errorf("invalid final state %q", state)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx, uuid)

	var current string
	row := tx.QueryRowContext(ctx,
		`SELECT state FROM executions WHERE uuid=?`, uuid,
	)
	err = row.Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("executing sql query failed: %w", err)
	case current != StateRunning:
		return ErrAlreadyFinished
	}

	var failureReason *string
	if reason != "" {
		failureReason = &reason
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE executions
		 SET
			state = ?,
			exit_code = ?,
			failure_reason = ?,
			stopped = ?
		WHERE uuid = ?;
		`, state, exitCode, failureReason, s.now().UnixMilli(), uuid,
	)
	if err != nil {
		return fmt.Errorf("executing sql update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

// Get returns the execution identified by uuid or ErrNotFound.
func (s *Store) Get(ctx context.Context, uuid string) (ExecutionRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, uuid, image, state, exit_code, failure_reason, started, stopped
		 FROM executions WHERE uuid=?`, uuid,
	)
	ret, err := scan(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ExecutionRow{}, ErrNotFound
	case err != nil:
		return ExecutionRow{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	return ret, nil
}

// List returns up to limit most recent executions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]ExecutionRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, uuid, image, state, exit_code, failure_reason, started, stopped
		 FROM executions ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []ExecutionRow
	for rows.Next() {
		row, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row failed: %w", err)
		}
		ret = append(ret, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows failed: %w", err)
	}
	return ret, nil
}

// Delete removes the execution identified by uuid.
func (s *Store) Delete(ctx context.Context, uuid string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM executions WHERE uuid=?`, uuid,
	)
	if err != nil {
		return fmt.Errorf("executing sql delete failed: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching affected rows failed: %w", err)
	}
	if ra != 1 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (ExecutionRow, error) {
	var row ExecutionRow
	var started int64
	var stopped *int64
	err := s.Scan(
		&row.ID,
		&row.UUID,
		&row.Image,
		&row.State,
		&row.ExitCode,
		&row.FailureReason,
		&started,
		&stopped,
	)
	if err != nil {
		return ExecutionRow{}, err
	}
	row.Started = time.UnixMilli(started).UTC()
	if stopped != nil {
		t := time.UnixMilli(*stopped).UTC()
		row.Stopped = &t
	}
	return row, nil
}

func rollback(ctx context.Context, tx *sql.Tx, uuid string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("uuid", uuid))
	}
}
