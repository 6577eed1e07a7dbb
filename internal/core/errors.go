// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with context and match with errors.Is.
var (
	// Ingestion errors
	ErrCaptureDisabled = errors.New("sipflow: capture disabled")
	ErrNoCallID        = errors.New("sipflow: payload has no Call-ID")
	ErrMalformedHeader = errors.New("sipflow: malformed capture header")
	ErrIncompleteCall  = errors.New("sipflow: call does not start with an initial request")

	// Catalog errors
	ErrUnknownAttribute = errors.New("sipflow: unknown attribute")

	// Capture source errors
	ErrUnsupportedLinkType = errors.New("sipflow: unsupported link type")

	// Configuration errors
	ErrConfigInvalid = errors.New("sipflow: invalid configuration")
)
