package document

import "errors"

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionNotFound = errors.New("version not found")
	ErrLocked          = errors.New("document is locked")
	ErrForbidden       = errors.New("forbidden")
	ErrMalformed       = errors.New("malformed message")
	ErrExists          = errors.New("document already exists")
)

// IsNotFound reports whether err means a document or version id did not resolve.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionNotFound)
}
