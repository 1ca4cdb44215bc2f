package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "validation", err: Validation("tags", "must not be empty"), want: KindValidation},
		{name: "wrapped not found", err: fmt.Errorf("load: %w", NotFound("event")), want: KindNotFound},
		{name: "unauthorized", err: Unauthorized("no permission"), want: KindUnauthorized},
		{name: "duplicate", err: Duplicate("permission already granted"), want: KindDuplicate},
		{name: "plain error", err: errors.New("boom"), want: KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			assert.True(t, Is(tt.err, tt.want))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "invalid tags: must not be empty", Validation("tags", "must not be empty").Error())
	assert.Equal(t, "event not found", NotFound("event").Error())

	cause := errors.New("connection reset")
	err := Internal("update event", cause)
	assert.Equal(t, "update event: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
}
