package wire

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"int", 7, int64(7)},
		{"int32", int32(-3), int64(-3)},
		{"uint8", uint8(200), int64(200)},
		{"float32", float32(1.5), float64(1.5)},
		{"bytes", []byte("N123AB"), "N123AB"},
		{"time", ts, "2026-03-01T11:30:00Z"},
		{"json int", json.Number("42"), int64(42)},
		{"json float", json.Number("42.5"), 42.5},
		{"nested", map[any]any{"a": []any{int16(1)}}, map[string]any{"a": []any{int64(1)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestCodecs_QueryRequest(t *testing.T) {
	for _, codec := range []Codec{JSON, MessagePack} {
		t.Run(codec.ContentType(), func(t *testing.T) {
			var buf bytes.Buffer
			in := QueryRequest{SQL: `SELECT * FROM "flights" WHERE "id" = $1`, Params: []any{int64(3), "x", 2.5, nil, true}}
			require.NoError(t, codec.Encode(&buf, in))

			var out QueryRequest
			require.NoError(t, codec.Decode(&buf, &out))

			assert.Equal(t, in.SQL, out.SQL)
			assert.Equal(t, in.Params, NormalizeParams(out.Params))
			assert.True(t, out.ReturnsRows())
		})
	}
}

func TestMessagePack_KeepsFloatType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, MessagePack.Encode(&buf, map[string]any{"hours": 2.0, "legs": int64(2)}))

	var out any
	require.NoError(t, MessagePack.Decode(&buf, &out))

	m := Normalize(out).(map[string]any)
	assert.Equal(t, 2.0, m["hours"])
	assert.Equal(t, int64(2), m["legs"])
}

func TestForContentType(t *testing.T) {
	assert.Equal(t, MessagePack, ForContentType("application/msgpack"))
	assert.Equal(t, MessagePack, ForContentType("application/x-msgpack; charset=binary"))
	assert.Equal(t, JSON, ForContentType("application/json; charset=utf-8"))
	assert.Equal(t, JSON, ForContentType(""))
}

func TestQueryRequest_Returns(t *testing.T) {
	no := false
	assert.False(t, QueryRequest{Returns: &no}.ReturnsRows())
	assert.True(t, QueryRequest{}.ReturnsRows())
}
