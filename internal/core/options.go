package core

import (
	"net/http"
	"time"

	"github.com/coregx/airbase/internal/cache"
	"github.com/coregx/airbase/internal/logger"
	"github.com/coregx/airbase/internal/schema"
	"github.com/coregx/airbase/internal/tracer"
	"github.com/coregx/airbase/internal/wire"
)

// settings collects everything the functional options can set. Each
// constructor reads the fields that concern it and ignores the rest, so
// one option list can configure an executor and the client built on it.
type settings struct {
	logger    logger.Logger
	sanitizer *logger.Sanitizer
	tracer    tracer.Tracer
	hook      QueryHook

	stmtCacheCapacity int
	maxOpenConns      int
	maxIdleConns      int
	connMaxLifetime   time.Duration
	healthInterval    time.Duration

	resultCache cache.ResultCache
	resultTTL   time.Duration

	httpClient *http.Client
	codec      wire.Codec
	headers    http.Header

	schema *schema.Schema
}

func newSettings(opts []Option) *settings {
	s := &settings{
		logger:    &logger.NoopLogger{},
		sanitizer: logger.NewSanitizer(nil),
		tracer:    &tracer.NoopTracer{},
		codec:     wire.JSON,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures an executor or a client.
type Option func(*settings)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		s.logger = logger.OrNoop(l)
	}
}

// WithSensitiveFields replaces the column names whose presence masks
// statement parameters in logs.
func WithSensitiveFields(fields ...string) Option {
	return func(s *settings) {
		s.sanitizer = logger.NewSanitizer(fields)
	}
}

// WithTracer enables one span per executed statement.
func WithTracer(t tracer.Tracer) Option {
	return func(s *settings) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithQueryHook registers a callback invoked after every statement.
func WithQueryHook(hook QueryHook) Option {
	return func(s *settings) {
		s.hook = hook
	}
}

// WithStmtCacheCapacity sets the prepared statement cache size of a
// LocalExecutor.
func WithStmtCacheCapacity(capacity int) Option {
	return func(s *settings) {
		s.stmtCacheCapacity = capacity
	}
}

// WithMaxOpenConns bounds the pool. Callers beyond the bound wait for a
// free connection.
func WithMaxOpenConns(n int) Option {
	return func(s *settings) {
		s.maxOpenConns = n
	}
}

// WithMaxIdleConns sets the number of idle connections kept by the pool.
func WithMaxIdleConns(n int) Option {
	return func(s *settings) {
		s.maxIdleConns = n
	}
}

// WithConnMaxLifetime recycles pooled connections after d.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(s *settings) {
		s.connMaxLifetime = d
	}
}

// WithHealthCheck pings the pool every interval in the background.
func WithHealthCheck(interval time.Duration) Option {
	return func(s *settings) {
		s.healthInterval = interval
	}
}

// WithResultCache caches rows of read statements for ttl and drops them
// when a write touches one of the tables they read. A zero ttl keeps
// entries until invalidated. Reads racing a write through the same
// executor never cache stale rows; a write made by another process is
// only seen through its own invalidation, so such a race can leave stale
// rows cached until ttl.
func WithResultCache(c cache.ResultCache, ttl time.Duration) Option {
	return func(s *settings) {
		s.resultCache = c
		s.resultTTL = ttl
	}
}

// WithHTTPClient sets the client used by a RemoteExecutor. Timeouts are
// the caller's business; the default client has none.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.httpClient = c
	}
}

// WithCodec selects the wire encoding of a RemoteExecutor.
func WithCodec(c wire.Codec) Option {
	return func(s *settings) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithHeader adds a header to every request of a RemoteExecutor.
func WithHeader(key, value string) Option {
	return func(s *settings) {
		if s.headers == nil {
			s.headers = make(http.Header)
		}
		s.headers.Add(key, value)
	}
}

// WithSchema sets the relation schema used to resolve relation tokens.
// The default is an empty schema relying on naming heuristics.
func WithSchema(sc *schema.Schema) Option {
	return func(s *settings) {
		s.schema = sc
	}
}
