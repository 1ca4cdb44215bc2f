package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totem-events/backend/internal/models"
)

func TestGenerateValidate(t *testing.T) {
	svc := NewJWTService("secret", 1)
	user := models.User{ID: uuid.New(), Email: "ana@example.com", Name: "Ana", Admin: true}

	token, err := svc.Generate(user)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	actor := claims.Actor()
	assert.Equal(t, user.ID, actor.ID)
	assert.Equal(t, "Ana", actor.Name)
	assert.True(t, actor.Admin)
}

func TestValidateRejects(t *testing.T) {
	svc := NewJWTService("secret", 1)
	token, err := NewJWTService("other", 1).Generate(models.User{ID: uuid.New()})
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewJWTService("secret", -1).Generate(models.User{ID: uuid.New()})
	require.NoError(t, err)
	_, err = svc.Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
