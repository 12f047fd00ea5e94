package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMultiplicity(t *testing.T) {
	one := rowsResult([]Row{{"id": int64(1)}})
	two := rowsResult([]Row{{"id": int64(1)}, {"id": int64(2)}})
	none := rowsResult([]Row{})
	failure := failed(ErrNetwork.with("dial tcp", nil))
	affected := func(n int) Result { return affectedResult(int64(n)) }

	tests := []struct {
		name       string
		in         Result
		allowEmpty bool
		wantCode   string
		wantRow    Row
	}{
		{"single one", one, false, "", Row{"id": int64(1)}},
		{"single none", none, false, CodeNoRows, nil},
		{"single many", two, false, CodeMultipleRows, nil},
		{"maybe one", one, true, "", Row{"id": int64(1)}},
		{"maybe none", none, true, "", nil},
		{"maybe many", two, true, CodeMultipleRows, nil},
		{"error passes through", failure, false, CodeNetwork, nil},
		{"single one affected", affected(1), false, "", nil},
		{"single none affected", affected(0), false, CodeNoRows, nil},
		{"single many affected", affected(5), false, CodeMultipleRows, nil},
		{"maybe none affected", affected(0), true, "", nil},
		{"maybe many affected", affected(2), true, CodeMultipleRows, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyMultiplicity(tt.in, tt.allowEmpty)
			if tt.wantCode != "" {
				require.NotNil(t, got.Error)
				assert.Equal(t, tt.wantCode, got.Error.Code)
				assert.Nil(t, got.Data)
				return
			}
			require.Nil(t, got.Error)
			if tt.wantRow == nil {
				assert.Nil(t, got.Data)
				return
			}
			assert.Equal(t, tt.wantRow, got.Data)
			assert.Equal(t, tt.wantRow, got.Row())
		})
	}
}

func TestResult_RowsAndRow(t *testing.T) {
	list := rowsResult([]Row{{"id": int64(1)}})
	assert.Len(t, list.Rows(), 1)
	assert.Equal(t, Row{"id": int64(1)}, list.Row())

	single := Result{Data: Row{"id": int64(2)}}
	assert.Equal(t, []Row{{"id": int64(2)}}, single.Rows())

	empty := Result{}
	assert.Nil(t, empty.Rows())
	assert.Nil(t, empty.Row())
	assert.True(t, empty.OK())
	assert.NoError(t, empty.Err())
}

func TestResult_ErrIsTypedNil(t *testing.T) {
	var res Result
	// A nil *Error must not become a non-nil error interface.
	assert.True(t, res.Err() == nil)
}

func TestResult_EnvelopeJSON(t *testing.T) {
	ok, err := json.Marshal(rowsResult([]Row{{"id": int64(1)}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"id":1}],"error":null,"count":1}`, string(ok))

	bad, err := json.Marshal(failed(ErrUnboundedUpdate.with("flights", nil)))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"data":null,"error":{"message":"update requires at least one filter","code":"UNBOUNDED_UPDATE","details":"flights"},"count":null}`,
		string(bad))
}

func TestResult_Normalize(t *testing.T) {
	var res Result
	require.NoError(t, json.Unmarshal([]byte(`{"data":[{"id":1,"ratio":0.5,"name":"Ana"}],"count":1}`), &res))
	res.normalize()

	rows := res.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, float64(1), rows[0]["id"], "plain json decoding yields float64")
	assert.Equal(t, "Ana", rows[0]["name"])

	single := Result{Data: map[any]any{"id": int64(3)}}
	single.normalize()
	assert.Equal(t, Row{"id": int64(3)}, single.Row())
}

func TestError_Format(t *testing.T) {
	err := ErrNoRows.with("flights", nil)
	assert.Equal(t, "NO_ROWS: no rows returned, expected one (flights)", err.Error())

	plain := &Error{Message: "boom"}
	assert.Equal(t, "boom", plain.Error())
}

func TestError_IsMatchesByCode(t *testing.T) {
	decoded := &Error{Code: CodeMultipleRows, Message: "multiple rows returned, expected one"}
	assert.ErrorIs(t, decoded, ErrMultipleRows)
	assert.NotErrorIs(t, decoded, ErrNoRows)

	wrapped := fmt.Errorf("resolve: %w", decoded)
	assert.ErrorIs(t, wrapped, ErrMultipleRows)
}

func TestValidationError_KeepsCause(t *testing.T) {
	cause := errors.New("bad input")
	err := validationError(cause)
	assert.Equal(t, CodeValidation, err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Same(t, err, validationError(err), "an envelope error is not wrapped twice")
}
