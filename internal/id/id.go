package id

import "github.com/google/uuid"

// New returns a random UUID v4 string.
func New() string {
	return uuid.NewString()
}

// Blob returns a preview handle in the blob:<uuid> form.
func Blob() string {
	return "blob:" + uuid.NewString()
}
