package ebay

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/TimoDeg/margin-hunter/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want float64
	}{
		{"plain dollars", "$99.99", 99.99},
		{"euro", "€1,299.00", 1299.00},
		{"pound", "£15.50", 15.50},
		{"thousands separator", "$1,234.56", 1234.56},
		{"range takes lower bound", "$10.00 to $20.00", 10.00},
		{"free shipping", "Free", 0},
		{"free lowercase", "free", 0},
		{"empty", "", 0},
		{"whitespace only", "   ", 0},
		{"non numeric", "Contact seller", 0},
		{"trailing words", "$5.00 shipping", 5.00},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ParsePrice(tc.in), 0.001)
		})
	}
}

func itemHTML(title, price, shipping, condition, rating, href string) string {
	var b strings.Builder

	b.WriteString(`<div class="s-item">`)
	if title != "" {
		fmt.Fprintf(&b, `<div class="s-item__title">%s</div>`, title)
	}
	if price != "" {
		fmt.Fprintf(&b, `<span class="s-item__price">%s</span>`, price)
	}
	if shipping != "" {
		fmt.Fprintf(&b, `<span class="s-item__shipping">%s</span>`, shipping)
	}
	if condition != "" {
		fmt.Fprintf(&b, `<span class="SECONDARY_INFO">%s</span>`, condition)
	}
	if rating != "" {
		fmt.Fprintf(&b, `<span class="s-item__seller-info-text">%s</span>`, rating)
	}
	if href != "" {
		fmt.Fprintf(&b, `<a class="s-item__link" href="%s">link</a>`, href)
	}
	b.WriteString(`</div>`)

	return b.String()
}

func TestParse_ExtractsFields(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	markup := itemHTML(
		"RTX 3080 OC Edition",
		"$549.99",
		"+$12.50 shipping",
		"Brand New",
		"seller_one (1,234) 99.1%",
		"https://www.ebay.com/itm/1",
	)

	parser := NewParser(50)

	offers, err := parser.Parse(markup, "RTX 3080", now)
	require.NoError(t, err)
	require.Len(t, offers, 1)

	offer := offers[0]
	assert.Equal(t, "RTX 3080 OC Edition", offer.Title)
	assert.InDelta(t, 549.99, offer.Price, 0.001)
	assert.InDelta(t, 12.50, offer.Shipping, 0.001)
	assert.Equal(t, models.ConditionNew, offer.Condition)
	assert.Equal(t, "seller_one (1,234) 99.1%", offer.SellerRating)
	assert.Equal(t, "https://www.ebay.com/itm/1", offer.URL)
	assert.Equal(t, "ebay", offer.Source)
	assert.Equal(t, "RTX 3080", offer.ProductName)
	assert.Equal(t, now, offer.ScrapedAt)
}

func TestParse_DropsNonOffers(t *testing.T) {
	now := time.Now().UTC()

	markup := strings.Join([]string{
		itemHTML("Shop on eBay", "$20.00", "", "", "", "https://www.ebay.com/itm/ad"),
		itemHTML("", "$20.00", "", "", "", "https://www.ebay.com/itm/untitled"),
		itemHTML("No price listing", "", "", "", "", "https://www.ebay.com/itm/nope"),
		itemHTML("Free listing", "Free", "", "", "", "https://www.ebay.com/itm/free"),
		itemHTML("No link listing", "$20.00", "", "", "", ""),
		itemHTML("Real listing", "$20.00", "", "", "", "https://www.ebay.com/itm/real"),
	}, "\n")

	offers, err := NewParser(50).Parse(markup, "widget", now)
	require.NoError(t, err)

	require.Len(t, offers, 1)
	assert.Equal(t, "Real listing", offers[0].Title)
}

func TestParse_ConditionAndRatingDefaults(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		name          string
		condText      string
		wantCondition models.Condition
	}{
		{"refurbished", "Certified Refurbished", models.ConditionRefurbished},
		{"new", "Brand New", models.ConditionNew},
		{"used", "Pre-Owned", models.ConditionUsed},
		{"missing", "", models.ConditionUsed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			markup := itemHTML("Item", "$10.00", "", tc.condText, "", "https://www.ebay.com/itm/1")

			offers, err := NewParser(50).Parse(markup, "widget", now)
			require.NoError(t, err)
			require.Len(t, offers, 1)

			assert.Equal(t, tc.wantCondition, offers[0].Condition)
			assert.Equal(t, "Unknown", offers[0].SellerRating)
		})
	}
}

func TestParse_CapsContainersAndKeepsOrder(t *testing.T) {
	now := time.Now().UTC()

	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString(itemHTML(
			fmt.Sprintf("Item %d", i),
			"$10.00",
			"",
			"",
			"",
			fmt.Sprintf("https://www.ebay.com/itm/%d", i),
		))
	}

	offers, err := NewParser(3).Parse(b.String(), "widget", now)
	require.NoError(t, err)

	require.Len(t, offers, 3)
	assert.Equal(t, "Item 0", offers[0].Title)
	assert.Equal(t, "Item 1", offers[1].Title)
	assert.Equal(t, "Item 2", offers[2].Title)
}

func TestParse_EmptyMarkup(t *testing.T) {
	offers, err := NewParser(50).Parse("<html><body></body></html>", "widget", time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, offers)
}
