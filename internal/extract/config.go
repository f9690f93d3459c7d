// Package extract implements listing discovery and per-product field
// extraction against a renderer tab.
package extract

import "time"

// Default discriminator tokens for spec items. Items carrying neither token
// are treated as general specifications.
const (
	DefaultKeySpecsToken     = "key_specs_section"
	DefaultGeneralSpecsToken = "general_specs_section"
)

// Selectors are the site-specific lookup rules.
type Selectors struct {
	ProductLinks   string
	ProductTitle   string
	Categories     []string
	Specifications SpecSelectors
}

// SpecSelectors locate specification items and classify them.
type SpecSelectors struct {
	KeySpecsSection        string
	GeneralSpecsSection    string
	SpecItems              string
	SpecTitle              string
	SpecValue              string
	DiscriminatorAttribute string
}

// Waits bound the field lookups that may need the page to settle.
type Waits struct {
	Title time.Duration
	Specs time.Duration
}

// Fallback tunes the marker-based spec heuristic.
type Fallback struct {
	Marker      string
	MinTitleLen int
	MaxTitleLen int
	MinValueLen int
	MaxValueLen int
	KeyKeywords []string
}

func (s SpecSelectors) withDefaults() SpecSelectors {
	if s.KeySpecsSection == "" {
		s.KeySpecsSection = DefaultKeySpecsToken
	}
	if s.GeneralSpecsSection == "" {
		s.GeneralSpecsSection = DefaultGeneralSpecsToken
	}
	if s.DiscriminatorAttribute == "" {
		s.DiscriminatorAttribute = "class"
	}
	return s
}

func (f Fallback) withDefaults() Fallback {
	if f.Marker == "" {
		f.Marker = "Specifications"
	}
	if f.MinTitleLen <= 0 {
		f.MinTitleLen = 2
	}
	if f.MaxTitleLen <= 0 {
		f.MaxTitleLen = 60
	}
	if f.MinValueLen <= 0 {
		f.MinValueLen = 1
	}
	if f.MaxValueLen <= 0 {
		f.MaxValueLen = 200
	}
	return f
}
