// Package airbase is a fluent data client in the style of hosted
// backend-as-a-service SDKs, backed by a plain SQL database.
//
// Chained calls are assembled into parameterized SQL and run by an
// Executor: a LocalExecutor owns a database/sql pool inside a trusted
// process, a RemoteExecutor posts statements to that process over HTTP.
// Both resolve to the same Result envelope.
//
//	exec, err := airbase.OpenLocal("postgres", dsn)
//	if err != nil {
//		return err
//	}
//	defer exec.Close()
//
//	client := airbase.NewClient(exec, airbase.WithSchema(airbase.AviationSchema()))
//	res := client.From("flights").
//		Select("id, flight_number, aircraft:aircraft(registration)").
//		Eq("status", "scheduled").
//		Order("departure_time").
//		Limit(20).
//		Execute()
//	if err := res.Err(); err != nil {
//		return err
//	}
//	for _, row := range res.Rows() {
//		fmt.Println(row["flight_number"], row["aircraft_registration"])
//	}
package airbase

import (
	"github.com/coregx/airbase/internal/core"
	"github.com/coregx/airbase/internal/schema"
)

type (
	// Client is the entry point of the chain API.
	Client = core.Client
	// TableQuery starts a select, insert or update on one table.
	TableQuery = core.TableQuery
	// SelectQuery accumulates a read.
	SelectQuery = core.SelectQuery
	// InsertQuery accumulates a multi-row insert.
	InsertQuery = core.InsertQuery
	// UpdateQuery accumulates a filtered update.
	UpdateQuery = core.UpdateQuery

	// Result is the envelope every resolution method returns.
	Result = core.Result
	// Row is one result row keyed by column name.
	Row = core.Row
	// Error is the envelope error.
	Error = core.Error
	// Statement is assembled SQL with its parameters.
	Statement = core.Statement

	// Executor runs statements.
	Executor = core.Executor
	// LocalExecutor runs statements on a database/sql pool.
	LocalExecutor = core.LocalExecutor
	// RemoteExecutor posts statements to a data endpoint.
	RemoteExecutor = core.RemoteExecutor
	// HealthStatus is the pool health reported by a LocalExecutor.
	HealthStatus = core.HealthStatus
	// Option configures clients and executors.
	Option = core.Option

	// QueryEvent describes one finished statement.
	QueryEvent = core.QueryEvent
	// QueryHook receives a QueryEvent after every statement.
	QueryHook = core.QueryHook

	// SelectDescriptor, InsertDescriptor and UpdateDescriptor are the
	// accumulated state of a builder.
	SelectDescriptor = core.SelectDescriptor
	InsertDescriptor = core.InsertDescriptor
	UpdateDescriptor = core.UpdateDescriptor
	Condition        = core.Condition
	Operator         = core.Operator

	// Schema is the foreign-key map used to resolve relations.
	Schema = schema.Schema
	// SchemaOption declares a relation.
	SchemaOption = schema.Option
)

var (
	NewClient         = core.NewClient
	OpenLocal         = core.OpenLocal
	NewLocalExecutor  = core.NewLocalExecutor
	NewRemoteExecutor = core.NewRemoteExecutor
	Failed            = core.Failed

	BuildSelect = core.BuildSelect
	BuildInsert = core.BuildInsert
	BuildUpdate = core.BuildUpdate

	WithSchema            = core.WithSchema
	WithLogger            = core.WithLogger
	WithSensitiveFields   = core.WithSensitiveFields
	WithTracer            = core.WithTracer
	WithQueryHook         = core.WithQueryHook
	WithStmtCacheCapacity = core.WithStmtCacheCapacity
	WithMaxOpenConns      = core.WithMaxOpenConns
	WithMaxIdleConns      = core.WithMaxIdleConns
	WithConnMaxLifetime   = core.WithConnMaxLifetime
	WithHealthCheck       = core.WithHealthCheck
	WithResultCache       = core.WithResultCache
	WithHTTPClient        = core.WithHTTPClient
	WithCodec             = core.WithCodec
	WithHeader            = core.WithHeader

	NewSchema           = schema.New
	AviationSchema      = schema.Aviation
	WithRelation        = schema.WithRelation
	WithNamedRelation   = schema.WithNamedRelation
	WithJunction        = schema.WithJunction
	WithWellKnown       = schema.WithWellKnown
	WithStrictRelations = schema.WithStrictRelations
)

// Sentinel errors. Compare with errors.Is on Result.Err().
var (
	ErrNoRows             = core.ErrNoRows
	ErrMultipleRows       = core.ErrMultipleRows
	ErrUnboundedUpdate    = core.ErrUnboundedUpdate
	ErrNetwork            = core.ErrNetwork
	ErrValidation         = core.ErrValidation
	ErrRejectedStatement  = core.ErrRejectedStatement
	ErrUnsupportedDialect = core.ErrUnsupportedDialect

	ErrUndeclaredRelation = schema.ErrUndeclaredRelation
	ErrJunction           = schema.ErrJunction
)

// Envelope error codes.
const (
	CodeValidation        = core.CodeValidation
	CodeUnboundedUpdate   = core.CodeUnboundedUpdate
	CodeNoRows            = core.CodeNoRows
	CodeMultipleRows      = core.CodeMultipleRows
	CodeNetwork           = core.CodeNetwork
	CodeRejectedStatement = core.CodeRejectedStatement
	CodeDatabase          = core.CodeDatabase
	CodeConnection        = core.CodeConnection
	CodeCanceled          = core.CodeCanceled
	CodeUnsupported       = core.CodeUnsupported
)

// Filter operators.
const (
	OpEq    = core.OpEq
	OpNeq   = core.OpNeq
	OpGt    = core.OpGt
	OpGte   = core.OpGte
	OpLt    = core.OpLt
	OpLte   = core.OpLte
	OpLike  = core.OpLike
	OpILike = core.OpILike
	OpIn    = core.OpIn
	OpIs    = core.OpIs
)
