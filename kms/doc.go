// Package kms provides decryption oracles backed by a key management service.
//
// AWSDecrypter implements interfaces.Decrypter on top of AWS KMS. Ciphertext
// arrives base64 encoded and is decoded before the Decrypt call; the returned
// plaintext bytes are handed back as text.
//
// # Regions
//
// Every reference names (directly or through precedence) the region holding
// its key. AWSDecrypter creates one KMS client per distinct region on first
// use and reuses it for all later requests. Clients carry no session state
// beyond credentials, so concurrent use is safe.
//
// # Credentials
//
// By default the standard AWS credential chain is used (environment, shared
// config and credentials files, instance roles). AWSConfig can select a
// shared config profile, pass static keys, or point at a custom endpoint such
// as a local KMS emulator:
//
//	decrypter := kms.NewAWSDecrypter(kms.AWSConfig{
//		Profile:  "deploy",
//		Endpoint: "http://localhost:4566",
//	}, logger)
//
//	plaintext, err := decrypter.Decrypt(ctx, "AQICAHh...", "eu-west-1")
//
// # Errors
//
// Every failure, including malformed base64, is reported wrapped in
// interfaces.ErrOracleFailure. AWS errors stay reachable through errors.As.
package kms
