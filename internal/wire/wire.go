// Package wire defines the network contract between a client-side executor
// and the trusted data endpoint: request bodies, content codecs and the value
// normalization both sides apply so results compare equal after a round trip.
package wire

import (
	"encoding/json"
	"io"
	"math"
	"mime"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Content types understood by the data endpoint.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
)

// QueryRequest is the body of POST /query: a fully assembled statement.
// Returns defaults to true when omitted.
type QueryRequest struct {
	SQL     string `json:"sql" msgpack:"sql"`
	Params  []any  `json:"params" msgpack:"params"`
	Returns *bool  `json:"returns,omitempty" msgpack:"returns,omitempty"`
}

// ReturnsRows reports whether the statement yields rows.
func (r QueryRequest) ReturnsRows() bool {
	return r.Returns == nil || *r.Returns
}

// InsertRequest is the body of POST /insert: rows to insert into Table.
type InsertRequest struct {
	Table     string           `json:"table" msgpack:"table"`
	Data      []map[string]any `json:"data" msgpack:"data"`
	Returning string           `json:"returning,omitempty" msgpack:"returning,omitempty"`
}

// Codec encodes and decodes wire bodies.
type Codec interface {
	ContentType() string
	Encode(w io.Writer, v any) error
	Decode(r io.Reader, v any) error
}

// JSON is the default codec. Numbers decode as json.Number and are turned
// into int64 or float64 by Normalize.
var JSON Codec = jsonCodec{}

// MessagePack keeps integer and float types apart across the wire.
var MessagePack Codec = msgpackCodec{}

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return ContentTypeJSON }

func (jsonCodec) Encode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func (jsonCodec) Decode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}

type msgpackCodec struct{}

func (msgpackCodec) ContentType() string { return ContentTypeMsgpack }

func (msgpackCodec) Encode(w io.Writer, v any) error {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("msgpack")
	return enc.Encode(v)
}

func (msgpackCodec) Decode(r io.Reader, v any) error {
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}

// ForContentType picks the codec for a Content-Type header value.
// Unknown or empty types fall back to JSON.
func ForContentType(contentType string) Codec {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return JSON
	}
	switch mediaType {
	case ContentTypeMsgpack, "application/x-msgpack", "application/vnd.msgpack":
		return MessagePack
	default:
		return JSON
	}
}

// Normalize maps driver and decoder values onto a small canonical set:
// int64, float64, string, bool, nil, map[string]any and []any.
// Timestamps become RFC 3339 strings in UTC and byte slices become strings.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int64, float64:
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return normalizeUint(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = Normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if ks, ok := k.(string); ok {
				out[ks] = Normalize(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Normalize(val)
		}
		return out
	default:
		return x
	}
}

func normalizeUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

// NormalizeParams applies Normalize to every statement parameter.
func NormalizeParams(params []any) []any {
	out := make([]any, len(params))
	for i, p := range params {
		out[i] = Normalize(p)
	}
	return out
}
