package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRandByteArray(t *testing.T) {
	b := GenerateRandByteArray(32)
	assert.Len(t, b, 32)
	assert.NotEqual(t, make([]byte, 32), b)
}

func TestWipeByteArray(t *testing.T) {
	b := []byte{1, 2, 3}
	WipeByteArray(b)
	assert.Equal(t, []byte{0, 0, 0}, b)

	// nil must not panic
	WipeByteArray(nil)
}
