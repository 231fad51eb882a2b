package session

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/pdcpos/posoffline/internal/common"
)

// AlgorithmArgon2id tags cached credentials hashed with the current scheme.
const AlgorithmArgon2id = "argon2id"

const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// hashSecret derives an argon2id hash of secret and encodes it in PHC string
// format, parameters included, so old hashes stay verifiable after a
// parameter bump.
func hashSecret(secret []byte) string {
	salt := common.GenerateRandByteArray(argonSaltLen)
	key := argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

// verifySecret recomputes the hash with the parameters embedded in encoded
// and compares in constant time.
func verifySecret(secret []byte, encoded string) (bool, error) {
	params, salt, key, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey(secret, salt, params.time, params.memory, params.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

// needsRehash reports whether encoded was produced with parameters weaker
// than the current ones.
func needsRehash(encoded string) bool {
	params, _, key, err := parseHash(encoded)
	if err != nil {
		return true
	}
	return params.memory < argonMemory || params.time < argonTime ||
		params.threads < argonThreads || len(key) < argonKeyLen
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func parseHash(encoded string) (argonParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return argonParams{}, nil, nil, fmt.Errorf("malformed credential hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("malformed credential hash: %w", err)
	}
	if version != argon2.Version {
		return argonParams{}, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var p argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("malformed credential hash: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("malformed credential hash: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("malformed credential hash: %w", err)
	}
	return p, salt, key, nil
}
