package ebay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultCategory  = "0"
	defaultCondition = "3000" // eBay condition code for "all"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Fetcher issues search requests against the marketplace search endpoint and
// returns raw page markup. One outbound call per Search invocation.
type Fetcher struct {
	baseURL string
	client  *http.Client
}

func NewFetcher(baseURL string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Fetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Search fetches the result page for a product name and filter map. Supported
// filter keys: category, condition, price_min, price_max. Transport errors
// and non-2xx statuses are returned as errors; callers are expected to treat
// them as "no results" rather than aborting a run.
func (f *Fetcher) Search(ctx context.Context, productName string, filters map[string]string) (string, error) {
	const op = "ebay.Search"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.SearchURL(productName, filters), nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s: http status %d", op, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read body: %w", op, err)
	}

	return string(body), nil
}

// SearchURL builds the deterministic search query for a product.
func (f *Fetcher) SearchURL(productName string, filters map[string]string) string {
	q := url.Values{}
	q.Set("_nkw", productName)

	category := filters["category"]
	if category == "" {
		category = defaultCategory
	}
	q.Set("_sacat", category)

	condition := filters["condition"]
	if condition == "" {
		condition = defaultCondition
	}
	q.Set("LH_ItemCondition", condition)

	if min := filters["price_min"]; min != "" {
		q.Set("_udlo", min)
	}
	if max := filters["price_max"]; max != "" {
		q.Set("_udhi", max)
	}

	return f.baseURL + "?" + q.Encode()
}
