package core

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/coregx/airbase/internal/dialects"
	"github.com/coregx/airbase/internal/schema"
)

var fixture = []string{
	`CREATE TABLE aircraft (
		id INTEGER PRIMARY KEY,
		registration TEXT NOT NULL,
		model TEXT
	)`,
	`CREATE TABLE airports (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL
	)`,
	`CREATE TABLE flights (
		id INTEGER PRIMARY KEY,
		flight_number TEXT NOT NULL,
		status TEXT,
		aircraft_id INTEGER,
		departure_airport_id INTEGER,
		arrival_airport_id INTEGER
	)`,
	`CREATE TABLE crew_members (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT,
		base TEXT
	)`,
	`INSERT INTO aircraft (id, registration, model) VALUES (1, 'N101AB', 'A320'), (2, 'N202CD', 'B737')`,
	`INSERT INTO airports (id, code) VALUES (1, 'JFK'), (2, 'LAX')`,
	`INSERT INTO flights (id, flight_number, status, aircraft_id, departure_airport_id, arrival_airport_id) VALUES
		(1, 'AB100', 'scheduled', 1, 1, 2),
		(2, 'AB200', 'scheduled', 2, 2, 1),
		(3, 'AB300', 'cancelled', 1, 1, 2),
		(4, 'AB400', 'delayed', NULL, 2, 1)`,
	`INSERT INTO crew_members (id, name, role, base) VALUES
		(1, 'Ana', 'captain', 'JFK'),
		(2, 'Ben', 'first_officer', 'LAX'),
		(3, 'Cy', 'captain', NULL)`,
}

// openFixtureDB returns an in-memory SQLite database seeded with the
// flight operations tables. A single connection keeps every statement on
// the same in-memory database.
func openFixtureDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range fixture {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

// newFixtureClient returns a client over a LocalExecutor on the fixture
// database, using the aviation schema.
func newFixtureClient(t testing.TB, opts ...Option) (*Client, *LocalExecutor) {
	t.Helper()

	exec, err := NewLocalExecutor(openFixtureDB(t), "sqlite", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	opts = append([]Option{WithSchema(schema.Aviation())}, opts...)
	return NewClient(exec, opts...), exec
}

// recordingExecutor records statements and replies with a canned result.
type recordingExecutor struct {
	dialect dialects.Dialect
	result  Result

	mu    sync.Mutex
	stmts []Statement
}

func newRecordingExecutor(dialect string) *recordingExecutor {
	return &recordingExecutor{dialect: dialects.GetDialect(dialect)}
}

func (r *recordingExecutor) Execute(_ context.Context, stmt Statement) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = append(r.stmts, stmt)
	return r.result
}

func (r *recordingExecutor) Dialect() dialects.Dialect {
	return r.dialect
}

func (r *recordingExecutor) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stmts)
}

func intPtr(n int) *int {
	return &n
}
