package cache

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync/atomic"
)

// countingDriver prepares inert statements and counts prepares and closes,
// so tests can check that evicted or losing statements are released.
type countingDriver struct {
	prepared atomic.Int64
	closed   atomic.Int64
}

type countingConn struct{ d *countingDriver }

type countingStmt struct{ d *countingDriver }

func (d *countingDriver) Open(_ string) (driver.Conn, error) {
	return &countingConn{d: d}, nil
}

func (c *countingConn) Prepare(_ string) (driver.Stmt, error) {
	c.d.prepared.Add(1)
	return &countingStmt{d: c.d}, nil
}

func (c *countingConn) Close() error { return nil }

func (c *countingConn) Begin() (driver.Tx, error) { return nil, driver.ErrSkip }

func (s *countingStmt) Close() error {
	s.d.closed.Add(1)
	return nil
}

func (s *countingStmt) NumInput() int { return 0 }

func (s *countingStmt) Exec(_ []driver.Value) (driver.Result, error) { return nil, driver.ErrSkip }

func (s *countingStmt) Query(_ []driver.Value) (driver.Rows, error) { return nil, driver.ErrSkip }

var driverCounter atomic.Uint64

// openCountingDB registers a fresh counting driver and opens a pool on it.
func openCountingDB() (*sql.DB, *countingDriver, error) {
	d := &countingDriver{}
	name := fmt.Sprintf("counting-driver-%d", driverCounter.Add(1))
	sql.Register(name, d)
	db, err := sql.Open(name, "")
	return db, d, err
}
