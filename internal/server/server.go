// Package server is the trusted data endpoint. It accepts assembled
// statements from RemoteExecutor clients and runs them on a LocalExecutor,
// replying with the Result Envelope in the caller's encoding.
//
// Routes:
//
//	POST /query    {sql, params, returns} → envelope
//	POST /insert   {table, data, returning} → envelope
//	GET  /healthz  pool health
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/coregx/airbase/internal/core"
	"github.com/coregx/airbase/internal/logger"
	"github.com/coregx/airbase/internal/security"
	"github.com/coregx/airbase/internal/tracer"
	"github.com/coregx/airbase/internal/wire"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 4 << 20

// Handler serves the data endpoint.
type Handler struct {
	exec      *core.LocalExecutor
	client    *core.Client
	validator *security.Validator
	auditor   *security.Auditor
	logger    logger.Logger
	tracer    tracer.Tracer
	maxBody   int64
	mux       *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		h.logger = logger.OrNoop(l)
	}
}

// WithValidator rejects statements failing v with REJECTED_STATEMENT
// before they reach the database. Without it statements run as received.
func WithValidator(v *security.Validator) Option {
	return func(h *Handler) {
		h.validator = v
	}
}

// WithAuditor records executed and rejected statements.
func WithAuditor(a *security.Auditor) Option {
	return func(h *Handler) {
		h.auditor = a
	}
}

// WithTracer opens one span per request.
func WithTracer(t tracer.Tracer) Option {
	return func(h *Handler) {
		if t != nil {
			h.tracer = t
		}
	}
}

// WithMaxBodyBytes bounds request bodies. Larger bodies are rejected.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// New returns the endpoint handler for exec.
func New(exec *core.LocalExecutor, opts ...Option) *Handler {
	h := &Handler{
		exec:    exec,
		client:  core.NewClient(exec),
		auditor: security.NewAuditor(nil, security.AuditNone),
		logger:  &logger.NoopLogger{},
		tracer:  &tracer.NoopTracer{},
		maxBody: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux = http.NewServeMux()
	h.mux.HandleFunc("POST /query", h.handleQuery)
	h.mux.HandleFunc("POST /insert", h.handleInsert)
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	return h
}

// ServeHTTP implements http.Handler. Every response carries the request ID
// the caller sent, or a new one.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(core.HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(core.HeaderRequestID, id)

	ctx := security.WithRequestID(r.Context(), id)
	ctx = security.WithClientIP(ctx, clientIP(r))
	ctx, span := h.tracer.StartSpan(ctx, tracer.SpanServe)
	defer span.End()

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	h.mux.ServeHTTP(rec, r.WithContext(ctx))

	span.SetAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.route", r.URL.Path),
		attribute.Int("http.status_code", rec.status),
		attribute.String("airbase.request_id", id),
	)
	h.logger.Info("request served",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"request_id", id,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	in, out := codecs(r)

	var req wire.QueryRequest
	if err := in.Decode(http.MaxBytesReader(w, r.Body, h.maxBody), &req); err != nil {
		h.reply(w, out, core.Failed(core.ErrValidation.Wrap("invalid request body: "+err.Error(), err)))
		return
	}

	stmt := core.Statement{
		SQL:     req.SQL,
		Params:  wire.NormalizeParams(req.Params),
		Returns: req.ReturnsRows(),
		Table:   security.Table(req.SQL),
	}
	h.reply(w, out, h.execute(r.Context(), stmt))
}

func (h *Handler) handleInsert(w http.ResponseWriter, r *http.Request) {
	in, out := codecs(r)

	var req wire.InsertRequest
	if err := in.Decode(http.MaxBytesReader(w, r.Body, h.maxBody), &req); err != nil {
		h.reply(w, out, core.Failed(core.ErrValidation.Wrap("invalid request body: "+err.Error(), err)))
		return
	}

	rows := make([]core.Row, len(req.Data))
	for i, d := range req.Data {
		rows[i], _ = wire.Normalize(d).(map[string]any)
	}
	q := h.client.From(req.Table).InsertRows(rows)
	if req.Returning != "" {
		q = q.Select(req.Returning)
	}
	stmt, err := q.Build()
	if err != nil {
		h.reply(w, out, core.Failed(envelopeError(err)))
		return
	}
	h.reply(w, out, h.execute(r.Context(), stmt))
}

// execute validates, runs and audits one statement.
func (h *Handler) execute(ctx context.Context, stmt core.Statement) core.Result {
	if h.validator != nil {
		if err := h.validator.ValidateQuery(stmt.SQL); err != nil {
			h.auditor.LogSecurityEvent(ctx, "rejected_statement", stmt.SQL, err)
			return core.Failed(core.ErrRejectedStatement.Wrap(err.Error(), err))
		}
		if err := h.validator.ValidateParams(stmt.Params); err != nil {
			h.auditor.LogSecurityEvent(ctx, "suspicious_params", stmt.SQL, err)
		}
	}

	start := time.Now()
	res := h.exec.Execute(ctx, stmt)
	h.auditor.LogOperation(ctx, stmt.SQL, stmt.Params, affected(res), res.Err(), time.Since(start))
	return res
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, out := codecs(r)

	st := h.exec.Health(r.Context())
	status := http.StatusOK
	if !st.Healthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", out.ContentType())
	w.WriteHeader(status)
	if err := out.Encode(w, st); err != nil {
		h.logger.Warn("health reply failed", "error", err)
	}
}

func (h *Handler) reply(w http.ResponseWriter, codec wire.Codec, res core.Result) {
	w.Header().Set("Content-Type", codec.ContentType())
	w.WriteHeader(statusFor(res))
	if err := codec.Encode(w, res); err != nil {
		h.logger.Warn("reply failed", "error", err)
	}
}

// statusFor maps an envelope onto an HTTP status. The envelope is always
// the body, so clients never need the status to interpret a reply.
func statusFor(res core.Result) int {
	if res.Error == nil {
		return http.StatusOK
	}
	switch res.Error.Code {
	case core.CodeValidation, core.CodeUnboundedUpdate, core.CodeRejectedStatement:
		return http.StatusBadRequest
	case core.CodeCanceled:
		return http.StatusRequestTimeout
	case core.CodeConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

// codecs picks the request codec from Content-Type and the reply codec
// from Accept, falling back to the request codec.
func codecs(r *http.Request) (in, out wire.Codec) {
	in = wire.ForContentType(r.Header.Get("Content-Type"))
	out = in
	if accept := r.Header.Get("Accept"); accept != "" && accept != "*/*" {
		out = wire.ForContentType(accept)
	}
	return in, out
}

func envelopeError(err error) *core.Error {
	var e *core.Error
	if errors.As(err, &e) {
		return e
	}
	return core.ErrValidation.Wrap(err.Error(), err)
}

func affected(res core.Result) int64 {
	if res.Count != nil {
		return int64(*res.Count)
	}
	return int64(len(res.Rows()))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
