// Package cipher classifies configuration values as encrypted secret
// references.
//
// Two encodings are recognized. The object form is a structured value:
//
//	DB_PASSWORD:
//	  encrypted: AQICAHh...
//	  kmsKeyRegion: eu-west-1   # optional
//
// The inline form is a data URI, with an optional region segment:
//
//	DB_PASSWORD: data:aws/kms;AQICAHh...
//	DB_PASSWORD: data:aws/kms;eu-west-1,AQICAHh...
//
// Classify maps every value to exactly one of PlainText, ObjectCipher or
// DataURICipher, or returns an error wrapping
// interfaces.ErrMalformedCipherObject or interfaces.ErrMalformedInlineCipher.
// Parsing has no side effects and never talks to the network.
package cipher
