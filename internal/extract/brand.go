package extract

import (
	"regexp"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

// brandPattern matches free text followed by a parenthesized alias, e.g.
// "Samsung (Galaxy)".
var brandPattern = regexp.MustCompile(`^(.*\S)(\s*\([^()]+\))\s*$`)

// InferBrand promotes the last breadcrumb entry to a brand when it matches
// brandPattern. The entry is removed from the returned categories; the
// input slice is not modified.
func InferBrand(categories []catalog.Category) (*string, []catalog.Category) {
	if len(categories) == 0 {
		return nil, categories
	}
	last := categories[len(categories)-1]
	m := brandPattern.FindStringSubmatch(last.Name)
	if m == nil {
		return nil, categories
	}
	brand := m[1] + m[2]
	out := make([]catalog.Category, len(categories)-1)
	copy(out, categories[:len(categories)-1])
	return &brand, out
}
