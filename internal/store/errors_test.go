package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"classified transient", NewError(ErrTransient, "pg-a", "write", errors.New("broken pipe")), ErrTransient},
		{"classified unavailable", NewError(ErrUnavailable, "pg-a", "write", errors.New("refused")), ErrUnavailable},
		{"wrapped classified", fmt.Errorf("commit: %w", NewError(ErrSchemaViolation, "pg-a", "write", nil)), ErrSchemaViolation},
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"cancel", context.Canceled, ErrTimeout},
		{"unknown defaults to transient", errors.New("anything"), ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("duplicate key")
	err := NewError(ErrConflict, "pg-a", "write", cause)
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsConflict(err))
	assert.False(t, IsTransient(err))
}

func TestParseRole(t *testing.T) {
	for _, good := range []string{"index", "vector", "graph"} {
		r, err := ParseRole(good)
		assert.NoError(t, err)
		assert.Equal(t, Role(good), r)
	}
	_, err := ParseRole("document")
	assert.Error(t, err)
}
