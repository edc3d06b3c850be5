// Package sanitizer normalizes inbound booking input before validation.
//
// All normalization functions are idempotent. Applying them multiple times produces
// the same result. Invalid input is passed through so the validator can reject it.
//
// Normalization includes:
//   - Identifiers: trim surrounding whitespace
//   - Dates: trim, and rewrite RFC 3339 timestamps to their calendar date
//   - Purposes: trim, collapse whitespace, lowercase
package sanitizer
