package interfaces

import "context"

// Decrypter is the decryption oracle. Ciphertext is base64 encoded, region
// selects the key domain. Implementations must be safe for concurrent use.
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext string, region string) (string, error)
}

// EnvironmentSink receives projected environment variables.
type EnvironmentSink interface {
	Setenv(name, value string) error
}
