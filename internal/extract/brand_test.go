package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

func TestInferBrand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		last      string
		wantBrand string
		promoted  bool
	}{
		{name: "alias with space", last: "Samsung (Galaxy)", wantBrand: "Samsung (Galaxy)", promoted: true},
		{name: "alias without space", last: "Apple(iPhone)", wantBrand: "Apple(iPhone)", promoted: true},
		{name: "trailing whitespace trimmed", last: "Sony (Xperia)  ", wantBrand: "Sony (Xperia)", promoted: true},
		{name: "plain category", last: "Phones", promoted: false},
		{name: "alias only", last: "(Galaxy)", promoted: false},
		{name: "nested parens", last: "Brand (a (b))", promoted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := []catalog.Category{{Level: 1, Name: "Electronics"}, {Level: 2, Name: tt.last}}
			brand, out := InferBrand(in)
			if !tt.promoted {
				require.Nil(t, brand)
				require.Equal(t, in, out)
				return
			}
			require.NotNil(t, brand)
			require.Equal(t, tt.wantBrand, *brand)
			require.Equal(t, []catalog.Category{{Level: 1, Name: "Electronics"}}, out)
			for _, c := range out {
				require.NotEqual(t, *brand, c.Name)
			}
			require.Len(t, in, 2, "input must not be modified")
		})
	}
}

func TestInferBrandEmpty(t *testing.T) {
	t.Parallel()

	brand, out := InferBrand(nil)
	require.Nil(t, brand)
	require.Empty(t, out)
}
