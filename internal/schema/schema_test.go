package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForeignKey_Resolution(t *testing.T) {
	s := MustNew(
		WithRelation("flights", "aircraft", "tail_id"),
		WithWellKnown("people", "person_ref"),
		WithJunction("flights", "crew_members", "flight_crew"),
	)

	tests := []struct {
		name string
		from string
		to   string
		want string
	}{
		{"declared", "flights", "aircraft", "tail_id"},
		{"well-known", "flights", "people", "person_ref"},
		{"singularized plural", "flights", "airports", "airport_id"},
		{"compound plural", "duty_periods", "crew_members", "crew_member_id"},
		{"already singular", "flights", "fleet", "fleet_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, err := s.ForeignKey(tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, col)
		})
	}
}

func TestForeignKey_Junction(t *testing.T) {
	s := Aviation()

	_, err := s.ForeignKey("flights", "crew_members")
	assert.ErrorIs(t, err, ErrJunction)

	// Junctions are symmetric.
	_, err = s.ForeignKey("crew_members", "flights")
	assert.ErrorIs(t, err, ErrJunction)
}

func TestForeignKey_Strict(t *testing.T) {
	s := MustNew(
		WithStrictRelations(),
		WithRelation("flights", "aircraft", "aircraft_id"),
	)
	assert.True(t, s.Strict())

	col, err := s.ForeignKey("flights", "aircraft")
	require.NoError(t, err)
	assert.Equal(t, "aircraft_id", col)

	_, err = s.ForeignKey("flights", "airports")
	assert.ErrorIs(t, err, ErrUndeclaredRelation)
}

func TestNamed(t *testing.T) {
	s := Aviation()

	col, ok := s.Named("flights", "arrival", "airports")
	assert.True(t, ok)
	assert.Equal(t, "arrival_airport_id", col)

	_, ok = s.Named("flights", "arrival", "aircraft")
	assert.False(t, ok, "named relation is bound to its table")
	_, ok = s.Named("flights", "aircraft", "airports")
	assert.False(t, ok, "table relations are not names")

	_, err := New(WithNamedRelation("flights", "diversion", "airports", ""))
	assert.Error(t, err)
	_, err = New(WithNamedRelation("flights", "diversion", "air ports", "diverted_airport_id"))
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestValidate(t *testing.T) {
	t.Run("empty column", func(t *testing.T) {
		_, err := New(WithRelation("flights", "aircraft", ""))
		assert.Error(t, err)
	})

	t.Run("direct and junction conflict", func(t *testing.T) {
		_, err := New(
			WithRelation("flights", "crew_members", "crew_member_id"),
			WithJunction("flights", "crew_members", "flight_crew"),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "both direct and via junction")
	})

	t.Run("invalid identifier", func(t *testing.T) {
		_, err := New(WithRelation("flights", "air craft", "aircraft_id"))
		assert.True(t, errors.Is(err, ErrInvalidIdentifier))
	})

	t.Run("aviation schema is valid", func(t *testing.T) {
		assert.NoError(t, Aviation().Validate())
	})

	t.Run("must new panics", func(t *testing.T) {
		assert.Panics(t, func() { MustNew(WithJunction("a", "b", "")) })
	})
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("flights"))
	assert.NoError(t, ValidateIdentifier("flights.aircraft_id"))
	assert.Error(t, ValidateIdentifier(""))
	assert.Error(t, ValidateIdentifier("flights."))
	assert.Error(t, ValidateIdentifier("1flights"))
	assert.Error(t, ValidateIdentifier("id; DROP TABLE flights"))
}
