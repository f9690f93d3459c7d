package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
)

var (
	_ catalog.Clock = System{}
	_ catalog.Clock = Fixed{}
)

func TestSystemNowIsUTC(t *testing.T) {
	before := time.Now().Add(-time.Second)
	got := System{}.Now()
	after := time.Now().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(before) && got.Before(after), "got %v", got)
}

func TestFixedNow(t *testing.T) {
	instant := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	clk := Fixed(instant)

	assert.Equal(t, instant, clk.Now())
	assert.Equal(t, clk.Now(), clk.Now())
}
