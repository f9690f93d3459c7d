package catalog

import (
	"context"
	"io"
	"time"
)

// Element is a node located inside a rendered document. Elements are only
// valid until the owning Tab navigates again.
type Element interface {
	// Text returns the rendered text of the element, trimmed.
	Text(ctx context.Context) (string, error)
	// Attr returns the attribute value and whether it was present.
	Attr(ctx context.Context, name string) (string, bool, error)
	// Find performs a single lookup below the element without waiting.
	// It returns ErrNotFound when nothing matches.
	Find(ctx context.Context, rule string) (Element, error)
}

// Tab is one independent viewing context inside a renderer session. A Tab is
// owned by exactly one worker at a time.
type Tab interface {
	// ID identifies the tab within its session.
	ID() int
	// Navigate loads the URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// Find locates the first element matching rule. With wait <= 0 the lookup
	// is attempted once and returns ErrNotFound on a miss; otherwise it polls
	// until wait elapses and returns ErrFieldTimeout.
	Find(ctx context.Context, rule string, wait time.Duration) (Element, error)
	// FindAll locates every element matching rule, waiting like Find for at
	// least one match. A zero wait returns an empty slice on a miss.
	FindAll(ctx context.Context, rule string, wait time.Duration) ([]Element, error)
	// Scroll advances the viewport by one step; toTop resets it.
	Scroll(ctx context.Context, toTop bool) error
	// HTML snapshots the current document.
	HTML(ctx context.Context) (string, error)
}

// Session owns the shared renderer and its fixed set of tabs.
type Session interface {
	Tabs() []Tab
	Close(ctx context.Context) error
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ObjectStore is a BlobStore that can read back and remove what it wrote.
// GetObject returns ErrObjectNotFound for unknown paths.
type ObjectStore interface {
	BlobStore
	GetObject(ctx context.Context, path string) ([]byte, error)
	DeleteObject(ctx context.Context, path string) error
}

// RecordSink receives successful records after each batch.
type RecordSink interface {
	StoreRecords(ctx context.Context, runID string, records []ProductRecord) error
}

// Publisher pushes product notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
