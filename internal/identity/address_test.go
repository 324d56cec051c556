package identity

import (
	"errors"
	"testing"

	"github.com/powerchain/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("lowercase input is checksummed", func(t *testing.T) {
		addr, err := Normalize("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
		require.NoError(t, err)
		assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", addr)
	})

	t.Run("valid checksum accepted", func(t *testing.T) {
		addr, err := Normalize("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
		require.NoError(t, err)
		assert.Equal(t, "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", addr)
	})

	t.Run("bad checksum rejected", func(t *testing.T) {
		_, err := Normalize("0xFb6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
		assert.True(t, errors.Is(err, models.ErrInvalidAddress))
	})

	t.Run("wrong length rejected", func(t *testing.T) {
		_, err := Normalize("0x1234")
		assert.True(t, errors.Is(err, models.ErrInvalidAddress))
	})

	t.Run("non hex rejected", func(t *testing.T) {
		_, err := Normalize("0xzzaeb6053f3e94c9b9a09f33669435e7ef1beaed")
		assert.True(t, errors.Is(err, models.ErrInvalidAddress))
	})
}

func TestIsZero(t *testing.T) {
	assert.True(t, IsZero(""))
	assert.True(t, IsZero(ZeroAddress))
	assert.False(t, IsZero("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
}
