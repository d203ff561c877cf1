package db

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

var errPlainFailure = errors.New("some other failure")

func TestClassifyPgError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantState     string
		wantTransient bool
	}{
		{
			name:          "nil error",
			err:           nil,
			wantState:     "",
			wantTransient: false,
		},
		{
			name:          "deadlock",
			err:           &pgconn.PgError{Code: sqlstateDeadlockDetected},
			wantState:     "40P01",
			wantTransient: true,
		},
		{
			name:          "serialization failure",
			err:           &pgconn.PgError{Code: sqlstateSerializationFailed},
			wantState:     "40001",
			wantTransient: true,
		},
		{
			name:          "statement timeout",
			err:           &pgconn.PgError{Code: sqlstateStatementTimeout},
			wantState:     "57014",
			wantTransient: true,
		},
		{
			name:          "unique violation is permanent",
			err:           &pgconn.PgError{Code: "23505"},
			wantState:     "23505",
			wantTransient: false,
		},
		{
			name:          "deadlock text without pg error",
			err:           errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"),
			wantState:     "40P01",
			wantTransient: true,
		},
		{
			name:          "serialization text without pg error",
			err:           errors.New("could not serialize access due to concurrent update"),
			wantState:     "40001",
			wantTransient: true,
		},
		{
			name:          "unrelated error",
			err:           errPlainFailure,
			wantState:     "",
			wantTransient: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, transient := classifyPgError(tt.err)
			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, tt.wantTransient, transient)
		})
	}
}

func TestBackoffDelayGrows(t *testing.T) {
	first := backoffDelay(1)
	third := backoffDelay(3)

	assert.GreaterOrEqual(t, first, baseBackoff)
	assert.Less(t, first, 2*baseBackoff)
	assert.GreaterOrEqual(t, third, 4*baseBackoff)
	assert.Less(t, third, 5*baseBackoff)

	// Out-of-range attempts clamp to the first step.
	assert.GreaterOrEqual(t, backoffDelay(0), baseBackoff)
	assert.Less(t, backoffDelay(0), 2*baseBackoff)
}

func TestBackoffDelayJitterBounded(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := backoffDelay(2)
		assert.GreaterOrEqual(t, d, 2*baseBackoff)
		assert.Less(t, d, 2*baseBackoff+baseBackoff)

		time.Sleep(time.Microsecond)
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, isForeignKeyViolation(&pgconn.PgError{Code: sqlstateForeignKeyViolation}))
	assert.False(t, isForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isForeignKeyViolation(errPlainFailure))
	assert.False(t, isForeignKeyViolation(nil))
}
