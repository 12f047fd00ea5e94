package dialects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$1", GetDialect("postgres").Placeholder(1))
	assert.Equal(t, "$12", GetDialect("postgresql").Placeholder(12))
	assert.Equal(t, "?", GetDialect("mysql").Placeholder(3))
	assert.Equal(t, "?", GetDialect("sqlite").Placeholder(3))
}

func TestQuoteQualified(t *testing.T) {
	tests := []struct {
		dialect string
		in      string
		want    string
	}{
		{"postgres", "flights", `"flights"`},
		{"postgres", "flights.aircraft_id", `"flights"."aircraft_id"`},
		{"postgres", "flights.*", `"flights".*`},
		{"mysql", "flights.status", "`flights`.`status`"},
		{"sqlite", `we"ird`, `"we""ird"`},
	}

	for _, tt := range tests {
		t.Run(tt.dialect+"/"+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteQualified(GetDialect(tt.dialect), tt.in))
		})
	}
}

func TestILike(t *testing.T) {
	assert.Equal(t, `"name" ILIKE $1`, GetDialect("postgres").ILike(`"name"`, "$1"))
	assert.Equal(t, "LOWER(`name`) LIKE LOWER(?)", GetDialect("mysql").ILike("`name`", "?"))
}

func TestSupportsReturning(t *testing.T) {
	assert.True(t, GetDialect("postgres").SupportsReturning())
	assert.True(t, GetDialect("sqlite").SupportsReturning())
	assert.False(t, GetDialect("mysql").SupportsReturning())
}

func TestLookup(t *testing.T) {
	d, ok := Lookup("sqlite3")
	assert.True(t, ok)
	assert.Equal(t, "sqlite", d.Name())

	_, ok = Lookup("oracle")
	assert.False(t, ok)

	assert.Panics(t, func() { GetDialect("oracle") })
}
