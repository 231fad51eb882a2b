package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifySecret(t *testing.T) {
	encoded := hashSecret([]byte("1234"))
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := verifySecret([]byte("1234"), encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifySecret([]byte("4321"), encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashSecret_UniqueSalts(t *testing.T) {
	a := hashSecret([]byte("1234"))
	b := hashSecret([]byte("1234"))
	assert.NotEqual(t, a, b)
}

func TestVerifySecret_MalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$bcrypt$whatever",
		"$argon2id$v=19$m=65536,t=3,p=4$notbase64!!$also!!",
	} {
		_, err := verifySecret([]byte("1234"), encoded)
		assert.Error(t, err, encoded)
	}
}

func TestNeedsRehash(t *testing.T) {
	assert.False(t, needsRehash(hashSecret([]byte("1234"))))

	// Weaker parameters than the current scheme.
	weak := "$argon2id$v=19$m=4096,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"
	assert.True(t, needsRehash(weak))

	assert.True(t, needsRehash("garbage"))
}
