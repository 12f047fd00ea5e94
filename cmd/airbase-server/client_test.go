package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/coregx/airbase/internal/core"
	"github.com/coregx/airbase/internal/wire"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"1.5", 1.5},
		{"true", true},
		{"null", nil},
		{`"42"`, "42"},
		{"scheduled", "scheduled"},
		{`{"a":1}`, `{"a":1}`},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseValue(tt.in), tt.in)
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"status=scheduled", "note=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, []assignment{
		{column: "status", value: "scheduled"},
		{column: "note", value: "a=b"},
		{column: "empty", value: ""},
	}, got)

	_, err = parseAssignments([]string{"status"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=x"})
	assert.Error(t, err)
}

func TestReadRows(t *testing.T) {
	rows, err := readRows(`{"registration": "N101AB", "seats": 180}`, nil)
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{"registration": "N101AB", "seats": int64(180)}}, rows)

	rows, err = readRows("-", strings.NewReader(`[{"id": 1}, {"id": 2}]`))
	require.NoError(t, err)
	assert.Equal(t, []core.Row{{"id": int64(1)}, {"id": int64(2)}}, rows)

	_, err = readRows(`[1, 2]`, nil)
	assert.ErrorContains(t, err, "element 0")
	_, err = readRows(`"text"`, nil)
	assert.Error(t, err)
	_, err = readRows(`{`, nil)
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	count := 1
	require.NoError(t, printResult(&buf, core.Result{Data: []core.Row{{"id": int64(1)}}, Count: &count}))
	assert.JSONEq(t, `{"data": [{"id": 1}], "error": null, "count": 1}`, buf.String())

	buf.Reset()
	err := printResult(&buf, core.Failed(core.ErrNoRows))
	assert.Error(t, err, "envelope errors exit non-zero")
	assert.Contains(t, buf.String(), core.CodeNoRows)
}

// statementRecorder is a data endpoint that records the SQL it receives and
// answers with an empty row set.
type statementRecorder struct {
	mu   sync.Mutex
	sqls []string
}

func newStatementRecorder(t *testing.T) (*statementRecorder, string) {
	t.Helper()
	rec := &statementRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wire.QueryRequest
		if err := wire.JSON.Decode(r.Body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec.mu.Lock()
		rec.sqls = append(rec.sqls, req.SQL)
		rec.mu.Unlock()
		count := 0
		w.Header().Set("Content-Type", wire.ContentTypeJSON)
		_ = wire.JSON.Encode(w, core.Result{Data: []core.Row{}, Count: &count})
	}))
	t.Cleanup(srv.Close)
	return rec, srv.URL
}

func (rec *statementRecorder) last() string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.sqls) == 0 {
		return ""
	}
	return rec.sqls[len(rec.sqls)-1]
}

func TestQueryCommand_UsesAviationSchema(t *testing.T) {
	rec, url := newStatementRecorder(t)

	err := queryCommand().Run(context.Background(), []string{
		"query", "--url", url, "--dialect", "postgres",
		"--select", "*, crew_members:crew_members(*)",
		"flights",
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "flights"`, rec.last(), "junction relations never become a direct join")

	err = queryCommand().Run(context.Background(), []string{
		"query", "--url", url, "--dialect", "postgres",
		"--select", "id, departure:airports(code)",
		"flights",
	})
	require.NoError(t, err)
	assert.Contains(t, rec.last(), `ON "flights"."departure_airport_id" = "departure"."id"`)
}

func TestQueryCommand_SchemaFromConfig(t *testing.T) {
	rec, url := newStatementRecorder(t)

	path := filepath.Join(t.TempDir(), "airbase.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
schema:
  aviation: false
  relations:
    - {from: flights, to: aircraft, column: tail_id}
`), 0o600))

	err := queryCommand().Run(context.Background(), []string{
		"query", "--url", url, "--dialect", "postgres", "--config", path,
		"--select", "id, aircraft:aircraft(registration)",
		"flights",
	})
	require.NoError(t, err)
	assert.Contains(t, rec.last(), `ON "flights"."tail_id" = "aircraft"."id"`)
}

func TestClientSchema_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airbase.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
schema:
  relations:
    - {from: flights, to: aircraft, column: ""}
`), 0o600))

	_, err := configSchemaAt(t, path)
	assert.ErrorContains(t, err, "empty foreign key column")

	_, err = configSchemaAt(t, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// configSchemaAt runs clientSchema with --config set to path.
func configSchemaAt(t *testing.T, path string) (any, error) {
	t.Helper()
	var got any
	var gotErr error
	cmd := &cli.Command{
		Name:  "schema",
		Flags: []cli.Flag{schemaFlag()},
		Action: func(_ context.Context, cmd *cli.Command) error {
			got, gotErr = clientSchema(cmd)
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), []string{"schema", "--config", path}))
	return got, gotErr
}
