// Package catalog defines the core types shared across the scraper subsystems.
package catalog

import "time"

// Category is one breadcrumb level on a product page. Level is 1-based and
// reflects the position of the rule that matched it.
type Category struct {
	Level int    `json:"level"`
	Name  string `json:"name"`
}

// Spec is a single specification title/value pair.
type Spec struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ProductRecord is the structured result extracted from one product page.
type ProductRecord struct {
	URL          string     `json:"url"`
	Title        *string    `json:"title"`
	Brand        *string    `json:"brand,omitempty"`
	Categories   []Category `json:"categories"`
	KeySpecs     []Spec     `json:"key_specs"`
	GeneralSpecs []Spec     `json:"general_specs"`
}

// HasTitle reports whether a non-empty title was extracted.
func (r ProductRecord) HasTitle() bool {
	return r.Title != nil && *r.Title != ""
}

// HasBrand reports whether a brand was inferred from the breadcrumb.
func (r ProductRecord) HasBrand() bool {
	return r.Brand != nil && *r.Brand != ""
}

// HasSpecs reports whether any specification was extracted.
func (r ProductRecord) HasSpecs() bool {
	return len(r.KeySpecs) > 0 || len(r.GeneralSpecs) > 0
}

// OutcomeKind classifies the result of one extraction attempt.
type OutcomeKind string

// Outcome kinds recorded by the coordinator.
const (
	// OutcomeSucceeded means navigation worked and a title was found.
	OutcomeSucceeded OutcomeKind = "succeeded"
	// OutcomeUntitled means navigation worked but the title rule matched nothing.
	OutcomeUntitled OutcomeKind = "untitled"
	// OutcomeFailed means navigation or rendering failed.
	OutcomeFailed OutcomeKind = "failed"
	// OutcomeTimeout means the per-extraction deadline expired.
	OutcomeTimeout OutcomeKind = "timeout"
)

// Outcome is produced exactly once per URL per attempt.
type Outcome struct {
	URL      string
	Kind     OutcomeKind
	Record   *ProductRecord
	Err      error
	Duration time.Duration
}

// Processed reports whether the outcome counts as processed for checkpoint
// purposes: extraction succeeded and a title was found.
func (o Outcome) Processed() bool {
	return o.Kind == OutcomeSucceeded && o.Record != nil && o.Record.HasTitle()
}

// ApplyTitlePolicy downgrades a successful extraction without a title to
// OutcomeUntitled. The record is kept so callers can still inspect it.
func (o Outcome) ApplyTitlePolicy() Outcome {
	if o.Kind == OutcomeSucceeded && (o.Record == nil || !o.Record.HasTitle()) {
		o.Kind = OutcomeUntitled
	}
	return o
}

// Success builds an outcome for a page that navigated and rendered.
func Success(url string, record ProductRecord) Outcome {
	return Outcome{URL: url, Kind: OutcomeSucceeded, Record: &record}
}

// Failure builds a failed outcome for the URL.
func Failure(url string, kind OutcomeKind, err error) Outcome {
	return Outcome{URL: url, Kind: kind, Err: err}
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
