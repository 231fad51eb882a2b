package models

import "time"

// Credential is a locally verifiable copy of a user's auth secret.
// Only the hash is ever stored; the plaintext secret never touches disk.
type Credential struct {
	UserID     string
	Login      string
	SecretHash string
	Algorithm  string
	UpdatedAt  time.Time
}
