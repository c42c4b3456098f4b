package interfaces

import (
	"context"
	"errors"
)

// ErrMissingCredential indicates the selected backend has no API key
// configured. This is a configuration error: the caller must surface it
// instead of silently falling back to another paid provider.
var ErrMissingCredential = errors.New("backend credential not configured")

// Backend is a text-generation provider. Exactly one network-bound call
// happens per Generate invocation; the raw response text is returned
// unparsed so the caller can both parse it and price it.
type Backend interface {
	// Name returns the backend identifier used for selection and pricing
	Name() string

	// Generate produces raw response text for an assembled prompt
	Generate(ctx context.Context, prompt string) (string, error)
}
