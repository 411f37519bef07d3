// Package main (cmd/kmsenv) resolves KMS-encrypted environment variables in a
// deployment descriptor.
//
// Values in provider.environment and functions.<name>.environment may hold
// either an object of the form {encrypted: <base64>, kmsKeyRegion: <region>}
// or an inline reference "data:aws/kms;[<region>,]<base64>". Each reference is
// decrypted with AWS KMS and replaced by its plaintext.
//
// Commands:
//
//	kmsenv resolve               print the resolved descriptor
//	kmsenv run -f api -- cmd     run cmd with the function's resolved environment
//	kmsenv hook <name> [-- cmd]  run a lifecycle hook, optionally exec cmd after
//	kmsenv serve                 serve resolution over HTTP
//
// The region of a reference is, from most to least specific, the region named
// by the reference, --region (or the descriptor's provider.region), and
// --default-region. An inline reference without a region segment always uses
// --default-region.
package main
