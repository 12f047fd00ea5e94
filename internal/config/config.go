// Package config loads the server configuration file.
//
// A minimal file:
//
//	listen: ":8080"
//	database:
//	  driver: postgres
//	  dsn: postgres://airbase@localhost/ops?sslmode=disable
//
// Everything else has a default; see Default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coregx/airbase/internal/core"
	"github.com/coregx/airbase/internal/dialects"
	"github.com/coregx/airbase/internal/schema"
	"github.com/coregx/airbase/internal/security"
)

// Config is the server configuration file.
type Config struct {
	Listen   string   `yaml:"listen"`
	LogLevel string   `yaml:"log_level,omitempty"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis,omitempty"`
	Security Security `yaml:"security,omitempty"`
	Schema   Schema   `yaml:"schema,omitempty"`
}

// Database configures the connection pool.
type Database struct {
	Driver            string        `yaml:"driver"`
	DSN               string        `yaml:"dsn"`
	MaxOpenConns      int           `yaml:"max_open_conns,omitempty"`
	MaxIdleConns      int           `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime   time.Duration `yaml:"conn_max_lifetime,omitempty"`
	StmtCacheCapacity int           `yaml:"stmt_cache_capacity,omitempty"`
	HealthInterval    time.Duration `yaml:"health_interval,omitempty"`
	SensitiveFields   []string      `yaml:"sensitive_fields,omitempty"`
}

// Redis enables the read-through result cache when Addr is set.
type Redis struct {
	Addr     string        `yaml:"addr,omitempty"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	Prefix   string        `yaml:"prefix,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}

// Enabled reports whether a Redis address is configured.
func (r Redis) Enabled() bool {
	return r.Addr != ""
}

// Security configures statement validation and the audit trail.
type Security struct {
	ValidateStatements bool     `yaml:"validate_statements"`
	Strict             bool     `yaml:"strict,omitempty"`
	AllowedOperations  []string `yaml:"allowed_operations,omitempty"`
	Audit              string   `yaml:"audit,omitempty"`
	MaxBodyBytes       int64    `yaml:"max_body_bytes,omitempty"`
}

// Schema declares relations on top of, or instead of, the aviation schema.
type Schema struct {
	// Aviation includes the built-in aviation declarations. Defaults to true.
	Aviation  *bool             `yaml:"aviation,omitempty"`
	Strict    bool              `yaml:"strict,omitempty"`
	Relations []Relation        `yaml:"relations,omitempty"`
	Junctions []Junction        `yaml:"junctions,omitempty"`
	WellKnown map[string]string `yaml:"well_known,omitempty"`
}

// Relation is a declared foreign key: From.Column references To.id. With
// Name set the relation applies to requests aliased Name, such as
// departure:airports.
type Relation struct {
	From   string `yaml:"from"`
	Name   string `yaml:"name,omitempty"`
	To     string `yaml:"to"`
	Column string `yaml:"column"`
}

// Junction is a many-to-many pair resolved through Via.
type Junction struct {
	A   string `yaml:"a"`
	B   string `yaml:"b"`
	Via string `yaml:"via"`
}

// Default returns the configuration used for omitted keys.
func Default() Config {
	return Config{
		Listen:   ":8080",
		LogLevel: "info",
		Database: Database{
			MaxOpenConns:      25,
			MaxIdleConns:      5,
			ConnMaxLifetime:   30 * time.Minute,
			StmtCacheCapacity: 1000,
			HealthInterval:    30 * time.Second,
		},
		Redis: Redis{
			Prefix: "airbase:",
			TTL:    time.Minute,
		},
		Security: Security{
			ValidateStatements: true,
			Audit:              "writes",
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes data over Default and validates the result. Unknown keys
// are errors.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem in the configuration at once.
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen: required"))
	}
	if c.Database.Driver == "" {
		errs = append(errs, errors.New("database.driver: required"))
	} else if _, ok := dialects.Lookup(c.Database.Driver); !ok {
		errs = append(errs, fmt.Errorf("database.driver: unsupported %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn: required"))
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		errs = append(errs, errors.New("database: pool bounds must not be negative"))
	}
	if c.Database.MaxOpenConns > 0 && c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, errors.New("database.max_idle_conns: exceeds max_open_conns"))
	}
	if _, err := security.ParseAuditLevel(c.Security.Audit); err != nil {
		errs = append(errs, fmt.Errorf("security.audit: %w", err))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Redis.Enabled() && c.Redis.TTL <= 0 {
		errs = append(errs, errors.New("redis.ttl: must be positive"))
	}
	if _, err := c.Schema.Build(); err != nil {
		errs = append(errs, fmt.Errorf("schema: %w", err))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	err := level.UnmarshalText([]byte(c.LogLevel))
	return level, err
}

// AuditLevel parses Security.Audit. Validate has already rejected bad
// values, so the error is dropped.
func (c Config) AuditLevel() security.AuditLevel {
	level, _ := security.ParseAuditLevel(c.Security.Audit)
	return level
}

// Validator returns the statement validator, or nil when validation is off.
func (c Config) Validator() *security.Validator {
	if !c.Security.ValidateStatements {
		return nil
	}
	opts := []security.ValidatorOption{security.WithStrict(c.Security.Strict)}
	if len(c.Security.AllowedOperations) > 0 {
		opts = append(opts, security.WithAllowedOperations(c.Security.AllowedOperations...))
	}
	return security.NewValidator(opts...)
}

// ExecutorOptions maps the pool section onto LocalExecutor options.
func (c Config) ExecutorOptions() []core.Option {
	d := c.Database
	opts := []core.Option{
		core.WithMaxOpenConns(d.MaxOpenConns),
		core.WithMaxIdleConns(d.MaxIdleConns),
		core.WithConnMaxLifetime(d.ConnMaxLifetime),
		core.WithStmtCacheCapacity(d.StmtCacheCapacity),
	}
	if d.HealthInterval > 0 {
		opts = append(opts, core.WithHealthCheck(d.HealthInterval))
	}
	if len(d.SensitiveFields) > 0 {
		opts = append(opts, core.WithSensitiveFields(d.SensitiveFields...))
	}
	return opts
}

// LoadSchema builds the schema section of the file at path. Other sections
// are ignored, so clients can share the server's file without its
// database settings being required.
func LoadSchema(path string) (*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var file struct {
		Schema Schema `yaml:"schema"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	sc, err := file.Schema.Build()
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return sc, nil
}

// Build assembles the declared relations into a Schema.
func (s Schema) Build() (*schema.Schema, error) {
	var opts []schema.Option
	for _, r := range s.Relations {
		if r.Name != "" {
			opts = append(opts, schema.WithNamedRelation(r.From, r.Name, r.To, r.Column))
			continue
		}
		opts = append(opts, schema.WithRelation(r.From, r.To, r.Column))
	}
	for _, j := range s.Junctions {
		opts = append(opts, schema.WithJunction(j.A, j.B, j.Via))
	}
	for table, column := range s.WellKnown {
		opts = append(opts, schema.WithWellKnown(table, column))
	}
	if s.Strict {
		opts = append(opts, schema.WithStrictRelations())
	}

	if s.Aviation == nil || *s.Aviation {
		opts = append(schema.AviationOptions(), opts...)
	}
	return schema.New(opts...)
}
