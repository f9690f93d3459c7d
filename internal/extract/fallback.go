package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

// FallbackSpecs scans an HTML snapshot for spec pairs near elements whose own
// text contains the configured marker. It is best effort and may return false
// positives.
func FallbackSpecs(html string, cfg Fallback) (key, general []catalog.Spec, err error) {
	cfg = cfg.withDefaults()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("parse fallback html: %w", err)
	}

	seen := make(map[string]struct{})
	doc.Find("body *").Each(func(_ int, marker *goquery.Selection) {
		if !strings.Contains(ownText(marker), cfg.Marker) {
			return
		}
		marker.Parent().Find("*").Each(func(_ int, block *goquery.Selection) {
			lines := blockLines(block)
			if len(lines) != 2 || !cfg.accepts(lines[0], lines[1]) {
				return
			}
			dedupe := lines[0] + "\x00" + lines[1]
			if _, dup := seen[dedupe]; dup {
				return
			}
			seen[dedupe] = struct{}{}
			spec := catalog.Spec{Title: lines[0], Body: lines[1]}
			if cfg.isKey(lines[0]) {
				key = append(key, spec)
			} else {
				general = append(general, spec)
			}
		})
	})
	return key, general, nil
}

func (f Fallback) accepts(title, value string) bool {
	tl := utf8.RuneCountInString(title)
	vl := utf8.RuneCountInString(value)
	return tl >= f.MinTitleLen && tl <= f.MaxTitleLen &&
		vl >= f.MinValueLen && vl <= f.MaxValueLen
}

func (f Fallback) isKey(title string) bool {
	for _, kw := range f.KeyKeywords {
		if kw != "" && strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

func ownText(s *goquery.Selection) string {
	return s.Contents().FilterFunction(func(_ int, c *goquery.Selection) bool {
		return goquery.NodeName(c) == "#text"
	}).Text()
}

// blockLines returns the non-empty text lines of a block. Two element
// children with text count as two lines; otherwise the text is split on
// newlines.
func blockLines(block *goquery.Selection) []string {
	children := block.Children()
	if children.Length() == 2 && strings.TrimSpace(ownText(block)) == "" {
		first := strings.TrimSpace(children.Eq(0).Text())
		second := strings.TrimSpace(children.Eq(1).Text())
		if first != "" && second != "" {
			return []string{first, second}
		}
	}
	var lines []string
	for _, line := range strings.Split(block.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
