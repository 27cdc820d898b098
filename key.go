package betawatch

import "github.com/betawatch/betawatch/internal/checker"

// ErrInvalidKey is returned when a beta key fails format validation.
// Keys must be 8-12 alphanumeric characters.
var ErrInvalidKey = checker.ErrInvalidKey

// ValidateKey reports whether key has the accepted TestFlight key format.
//
// Validation is purely syntactic; a valid-looking key may still refer to a
// beta that does not exist.
func ValidateKey(key string) error {
	return checker.ValidateKey(key)
}
