package errorutil

import "errors"

// ErrDataIntegrity is the base error of every failure caused by a profile
// that can't be reconstructed, as opposed to a failure of the service itself.
var ErrDataIntegrity = errors.New("data integrity error")

// IsDataIntegrity reports whether err was caused by invalid profile data.
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}
