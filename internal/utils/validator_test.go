package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email   string `validate:"required,email"`
	Tickets int    `validate:"gte=1,lte=20"`
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(sample{Email: "a@b.co", Tickets: 2}))

	err := Validate(sample{Email: "nope", Tickets: 0})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "must be a valid email", ve.Fields["email"])
	assert.Equal(t, "must be at least 1", ve.Fields["tickets"])
	assert.Equal(t, "email: must be a valid email; tickets: must be at least 1", err.Error())
}

func TestVarInt(t *testing.T) {
	assert.NoError(t, VarInt("rating", 3, "gte=1,lte=5"))
	err := VarInt("rating", 6, "gte=1,lte=5")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "must be at most 5", ve.Fields["rating"])
}
