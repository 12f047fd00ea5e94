package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coregx/airbase/internal/dialects"
	"github.com/coregx/airbase/internal/tracer"
	"github.com/coregx/airbase/internal/wire"
)

// HeaderRequestID carries the request ID between client and data endpoint.
const HeaderRequestID = "X-Request-ID"

// maxErrorBody bounds how much of a non-envelope reply is kept for details.
const maxErrorBody = 512

// RemoteExecutor sends assembled statements to a trusted data endpoint
// over HTTP. It never opens a database connection.
type RemoteExecutor struct {
	base    string
	dialect dialects.Dialect
	cfg     *settings
}

// NewRemoteExecutor returns an executor posting to baseURL. dialectName is
// the dialect of the database behind the endpoint; statements are
// assembled for it on this side.
func NewRemoteExecutor(baseURL, dialectName string, opts ...Option) (*RemoteExecutor, error) {
	d, ok := dialects.Lookup(dialectName)
	if !ok {
		return nil, ErrUnsupportedDialect.with(dialectName, nil)
	}
	if baseURL == "" {
		return nil, validationf("remote executor: empty base URL")
	}

	cfg := newSettings(opts)
	if cfg.httpClient == nil {
		cfg.httpClient = http.DefaultClient
	}
	return &RemoteExecutor{
		base:    strings.TrimRight(baseURL, "/"),
		dialect: d,
		cfg:     cfg,
	}, nil
}

// Dialect implements Executor.
func (e *RemoteExecutor) Dialect() dialects.Dialect {
	return e.dialect
}

// Execute implements Executor by posting {sql, params, returns} to
// <base>/query. The reply envelope is returned as decoded.
func (e *RemoteExecutor) Execute(ctx context.Context, stmt Statement) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if stmt.SQL == "" {
		return failed(validationf("empty statement"))
	}

	returns := stmt.Returns
	body := wire.QueryRequest{
		SQL:     stmt.SQL,
		Params:  wire.NormalizeParams(stmt.Params),
		Returns: &returns,
	}
	return e.roundTrip(ctx, "/query", body, stmt)
}

// Insert posts rows to <base>/insert, letting the endpoint build the
// INSERT itself. returning is the RETURNING list, empty for "*".
func (e *RemoteExecutor) Insert(ctx context.Context, table string, rows []Row, returning string) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	data := make([]map[string]any, len(rows))
	for i, r := range rows {
		data[i], _ = wire.Normalize(r).(map[string]any)
	}
	body := wire.InsertRequest{Table: table, Data: data, Returning: returning}
	stmt := Statement{SQL: "INSERT INTO " + table, Returns: true, Table: table}
	return e.roundTrip(ctx, "/insert", body, stmt)
}

func (e *RemoteExecutor) roundTrip(ctx context.Context, path string, body any, stmt Statement) Result {
	ctx, span := e.cfg.tracer.StartSpan(ctx, tracer.SpanRemote)
	defer span.End()

	start := time.Now()
	res := e.post(ctx, path, body)
	res.normalize()

	e.cfg.observe(ctx, span, observation{
		env:     EnvironmentRemote,
		dialect: e.dialect.Name(),
		stmt:    stmt,
		res:     res,
		elapsed: time.Since(start),
	})
	return res
}

func (e *RemoteExecutor) post(ctx context.Context, path string, body any) Result {
	codec := e.cfg.codec

	var buf bytes.Buffer
	if err := codec.Encode(&buf, body); err != nil {
		return failed(validationf("encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base+path, &buf)
	if err != nil {
		return failed(networkError(err.Error(), err))
	}
	req.Header.Set("Content-Type", codec.ContentType())
	req.Header.Set("Accept", codec.ContentType())
	req.Header.Set(HeaderRequestID, uuid.NewString())
	for k, vs := range e.cfg.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := e.cfg.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return failed(databaseError(ctxErr))
		}
		return failed(networkError(err.Error(), err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(networkError("read reply: "+err.Error(), err))
	}

	var res Result
	decErr := wire.ForContentType(resp.Header.Get("Content-Type")).Decode(bytes.NewReader(raw), &res)
	switch {
	case decErr == nil && res.Error != nil:
		return res
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return failed(networkError(fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(raw)), nil))
	case decErr != nil:
		return failed(networkError("decode reply: "+decErr.Error(), decErr))
	}
	return res
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
