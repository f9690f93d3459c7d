package catalog

import "errors"

// Error taxonomy for discovery and extraction.
var (
	// ErrDiscoveryTimeout indicates the listing page never reached a loaded state.
	ErrDiscoveryTimeout = errors.New("discovery timeout")
	// ErrNavigation indicates a product page could not be navigated or rendered.
	ErrNavigation = errors.New("navigation failure")
	// ErrFieldTimeout indicates a bounded wait for a field expired.
	ErrFieldTimeout = errors.New("field timeout")
	// ErrNotFound indicates a lookup rule matched no element.
	ErrNotFound = errors.New("element not found")
	// ErrRender indicates an unexpected renderer error during a lookup.
	ErrRender = errors.New("render error")
	// ErrExtractionTimeout indicates the per-extraction deadline expired.
	ErrExtractionTimeout = errors.New("extraction deadline exceeded")
	// ErrObjectNotFound indicates a stored object does not exist.
	ErrObjectNotFound = errors.New("object not found")
)
