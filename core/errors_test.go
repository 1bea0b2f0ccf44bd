package core

import (
	"database/sql"
	stderrors "errors"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var errTaken = errors.New("taken")

func TestValidationError(t *testing.T) {
	err := errors.Wrap(NewValidationError(errTaken, FieldError{Field: "email", Error: "taken"}), "registering")

	ve, ok := errors.Cause(err).(*ValidationError)
	if assert.True(t, ok) {
		msg, found := ve.Field("email")
		assert.True(t, found)
		assert.Equal(t, "taken", msg)
		_, found = ve.Field("name")
		assert.False(t, found)
	}
	assert.True(t, stderrors.Is(err, errTaken))
	assert.Equal(t, "", ValidationError{}.Error())
}

func TestShutdownError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil},
		{name: "plain", err: errors.New("boom")},
		{name: "shutdown", err: NewShutdownError("database connection lost", sql.ErrConnDone), want: true},
		{name: "wrapped", err: errors.Wrap(NewShutdownError("database connection lost", nil), "finding profile"), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsShutdown(tt.err))
		})
	}

	err := NewShutdownError("database connection lost", sql.ErrConnDone)
	assert.Equal(t, "database connection lost: sql: connection is already closed", err.Error())
	assert.True(t, stderrors.Is(err, sql.ErrConnDone))
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Ahmad Fauzi", CleanString("  Ahmad \t  Fauzi \n"))
	assert.Equal(t, "ahmad@pesantren.id", CleanString(" Ahmad@Pesantren.ID ", true))
	assert.Equal(t, "", CleanString("   "))
}
