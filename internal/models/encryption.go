package models

// AES-GCM parameters for optional at-rest encryption of message text.
const (
	NonceSize  = 12
	KeySize    = 32
	Iterations = 100000
)
