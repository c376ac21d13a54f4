package ebay

import (
	"strconv"
	"strings"
	"time"

	"github.com/TimoDeg/margin-hunter/internal/models"

	"github.com/PuerkitoBio/goquery"
)

const (
	// Source tag attached to every record extracted by this parser.
	Source = "ebay"

	// Placeholder title eBay injects into ad slots.
	adPlaceholderTitle = "Shop on eBay"

	defaultMaxResults = 50
)

// Parser extracts structured offer records from raw search markup. It
// performs no I/O; output depends only on the input markup, which keeps it
// testable against fixed HTML fixtures.
type Parser struct {
	maxResults int
}

func NewParser(maxResults int) *Parser {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	return &Parser{maxResults: maxResults}
}

// Parse scans the markup for item containers and returns offer records in
// document order, looking at no more than maxResults containers. Field
// extraction per container degrades to defaults; containers that turn out not
// to be offers (ads, zero price, missing URL) are dropped.
func (p *Parser) Parse(markup, productName string, scrapedAt time.Time) ([]models.ScrapedOffer, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	var offers []models.ScrapedOffer

	doc.Find("div.s-item").EachWithBreak(func(i int, item *goquery.Selection) bool {
		if i >= p.maxResults {
			return false
		}

		offer, ok := extractOffer(item, productName, scrapedAt)
		if ok {
			offers = append(offers, offer)
		}

		return true
	})

	return offers, nil
}

func extractOffer(item *goquery.Selection, productName string, scrapedAt time.Time) (models.ScrapedOffer, bool) {
	title := strings.TrimSpace(item.Find(".s-item__title").First().Text())
	price := ParsePrice(item.Find(".s-item__price").First().Text())
	shipping := ParsePrice(item.Find(".s-item__shipping").First().Text())
	offerURL := strings.TrimSpace(item.Find("a.s-item__link").First().AttrOr("href", ""))

	// Not an offer: ad slots carry a placeholder title, real listings always
	// have a price and a canonical URL.
	if price <= 0 || title == "" || title == adPlaceholderTitle || offerURL == "" {
		return models.ScrapedOffer{}, false
	}

	condition := models.ConditionUsed
	if condText := item.Find(".SECONDARY_INFO").First().Text(); condText != "" {
		switch {
		case strings.Contains(condText, "Refurbished"):
			condition = models.ConditionRefurbished
		case strings.Contains(condText, "New"):
			condition = models.ConditionNew
		}
	}

	rating := strings.TrimSpace(item.Find(".s-item__seller-info-text").First().Text())
	if rating == "" {
		rating = "Unknown"
	}

	return models.ScrapedOffer{
		Title:        title,
		Price:        price,
		Shipping:     shipping,
		Condition:    condition,
		SellerRating: rating,
		URL:          offerURL,
		Source:       Source,
		ProductName:  productName,
		ScrapedAt:    scrapedAt,
	}, true
}

// ParsePrice turns a marketplace price string into a number. Currency symbols
// and thousands separators are stripped, a "X to Y" range yields the lower
// bound, and anything non-numeric (including "Free") yields 0.
func ParsePrice(priceText string) float64 {
	clean := strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(priceText)

	if strings.Contains(clean, "to") {
		clean = strings.SplitN(clean, "to", 2)[0]
	}

	fields := strings.Fields(clean)
	if len(fields) == 0 {
		return 0
	}

	price, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || price < 0 {
		return 0
	}

	return price
}
