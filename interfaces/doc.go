// Package interfaces defines the types and contracts shared by the resolver
// packages, separating them from their implementations.
//
// # Configuration tree
//
// ConfigurationTree is the environment-bearing part of a deployment descriptor:
//
//	provider:
//	  environment:        # shared scope
//	    LOG_LEVEL: info
//	functions:
//	  api:
//	    environment:      # unit scope
//	      DB_PASSWORD: data:aws/kms;eu-west-1,AQICAHh...
//
// Scopes are plain maps and may be absent (nil) rather than empty.
//
// # Contracts
//
//   - Decrypter: the decryption oracle, addressed by region.
//   - EnvironmentSink: destination of the process environment projection.
//
// # Error Types
//
//   - ErrMalformedCipherObject: object form with an empty or non-text "encrypted" field
//   - ErrMalformedInlineCipher: inline form with zero or more than two segments
//   - ErrOracleFailure: the oracle rejected a well-formed reference
//   - ErrUnknownUnit: projection targets an undeclared unit
package interfaces
