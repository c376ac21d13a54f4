package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/TimoDeg/margin-hunter/internal/ebay"
	"github.com/TimoDeg/margin-hunter/internal/models"
	"github.com/TimoDeg/margin-hunter/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	mu       sync.Mutex
	products []models.Product
	existing map[string]bool
	refs     map[int64]float64
	saved    []models.Offer
	history  []models.PriceHistory

	productsErr error
	saveErr     error
}

func (f *fakeStorage) ActiveProducts(_ context.Context) ([]models.Product, error) {
	if f.productsErr != nil {
		return nil, f.productsErr
	}
	return f.products, nil
}

func (f *fakeStorage) OfferExistsByURL(_ context.Context, offerURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[offerURL], nil
}

func (f *fakeStorage) SaveOfferWithHistory(_ context.Context, offer models.Offer) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.existing == nil {
		f.existing = map[string]bool{}
	}
	if f.existing[offer.URL] {
		return 0, storage.ErrOfferExists
	}
	f.existing[offer.URL] = true
	f.saved = append(f.saved, offer)

	// Mirrors the store's transactional insert: the offer arrives with its
	// first history row.
	id := int64(len(f.saved))
	f.history = append(f.history, models.PriceHistory{
		OfferID:    id,
		Price:      offer.Price,
		RecordedAt: offer.FirstSeenAt,
	})

	return id, nil
}

func (f *fakeStorage) LatestReferencePrice(_ context.Context, productID int64) (float64, error) {
	ref, ok := f.refs[productID]
	if !ok {
		return 0, storage.ErrReferenceNotFound
	}
	return ref, nil
}

type fakeFetcher struct {
	markup  map[string]string
	errFor  map[string]error
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Search(ctx context.Context, productName string, _ map[string]string) (string, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := f.errFor[productName]; err != nil {
		return "", err
	}
	return f.markup[productName], nil
}

type fakeParser struct {
	records map[string][]models.ScrapedOffer
	err     error
}

func (f *fakeParser) Parse(_, productName string, _ time.Time) ([]models.ScrapedOffer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[productName], nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.NotificationEvent
}

func (f *fakePublisher) PublishEvent(_ context.Context, event models.NotificationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, event)

	return nil
}

func (f *fakePublisher) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var types []string
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	return types
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(title string, price float64, url string) models.ScrapedOffer {
	return models.ScrapedOffer{
		Title:        title,
		Price:        price,
		URL:          url,
		Source:       "ebay",
		Condition:    models.ConditionUsed,
		SellerRating: "Unknown",
		ScrapedAt:    time.Now().UTC(),
	}
}

func TestRunOnce_CreatesOffersAndComputesMargin(t *testing.T) {
	st := &fakeStorage{
		products: []models.Product{{ID: 1, Name: "RTX 3080", Active: true}},
		refs:     map[int64]float64{1: 700},
	}
	parser := &fakeParser{records: map[string][]models.ScrapedOffer{
		"RTX 3080": {record("RTX 3080 OC", 550, "https://www.ebay.com/itm/1")},
	}}
	pub := &fakePublisher{}

	r := New(discardLogger(), st, &fakeFetcher{}, parser, nil, pub, 0, 20)

	created, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	require.Len(t, st.saved, 1)
	offer := st.saved[0]
	assert.Equal(t, int64(1), offer.ProductID)
	assert.Equal(t, "new", offer.Status)
	require.NotNil(t, offer.MarginPct)
	assert.InDelta(t, 27.3, *offer.MarginPct, 0.001)
	require.NotNil(t, offer.RefPrice)
	assert.InDelta(t, 700, *offer.RefPrice, 0.001)

	// Margin above threshold plus a run with created offers: one deal alert
	// and one run summary.
	assert.Equal(t, []string{"deal", "run_summary"}, pub.eventTypes())

	status := r.Status()
	assert.Equal(t, PhaseOK, status.Phase)
	assert.Equal(t, 1, status.LastCreated)
	require.NotNil(t, status.LastRunAt)
	assert.Empty(t, status.LastError)
}

func TestRunOnce_IngestsRealMarkup(t *testing.T) {
	markup := `
<div class="s-item">
  <div class="s-item__title">Shop on eBay</div>
  <span class="s-item__price">$20.00</span>
  <a class="s-item__link" href="https://www.ebay.com/itm/ad">link</a>
</div>
<div class="s-item">
  <div class="s-item__title">RTX 3080 OC</div>
  <span class="s-item__price">$550.00</span>
  <span class="SECONDARY_INFO">Pre-Owned</span>
  <a class="s-item__link" href="https://www.ebay.com/itm/u1">link</a>
</div>`

	st := &fakeStorage{
		products: []models.Product{{ID: 1, Name: "RTX 3080", Active: true}},
		refs:     map[int64]float64{1: 700},
	}
	fetcher := &fakeFetcher{markup: map[string]string{"RTX 3080": markup}}

	r := New(discardLogger(), st, fetcher, ebay.NewParser(50), nil, nil, 0, 20)

	created, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created, "the ad slot is dropped, the real listing survives")

	require.Len(t, st.saved, 1)
	offer := st.saved[0]
	assert.Equal(t, "RTX 3080 OC", offer.Title)
	assert.Equal(t, "https://www.ebay.com/itm/u1", offer.URL)
	assert.Equal(t, models.ConditionUsed, offer.Condition)
	assert.InDelta(t, 550, offer.Price, 0.001)
	require.NotNil(t, offer.MarginPct)
	assert.InDelta(t, 27.3, *offer.MarginPct, 0.001)

	require.Len(t, st.history, 1)
	assert.InDelta(t, 550, st.history[0].Price, 0.001)
	assert.Equal(t, offer.FirstSeenAt, st.history[0].RecordedAt)
}

func TestRunOnce_NoReferenceMeansNoMargin(t *testing.T) {
	st := &fakeStorage{
		products: []models.Product{{ID: 1, Name: "RTX 3080", Active: true}},
	}
	parser := &fakeParser{records: map[string][]models.ScrapedOffer{
		"RTX 3080": {record("RTX 3080 OC", 550, "https://www.ebay.com/itm/1")},
	}}
	pub := &fakePublisher{}

	r := New(discardLogger(), st, &fakeFetcher{}, parser, nil, pub, 0, 20)

	created, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	require.Len(t, st.saved, 1)
	assert.Nil(t, st.saved[0].MarginPct)
	assert.Nil(t, st.saved[0].RefPrice)

	// No margin, so no deal alert; the run summary still goes out.
	assert.Equal(t, []string{"run_summary"}, pub.eventTypes())
}

func TestRunOnce_SkipsDuplicates(t *testing.T) {
	st := &fakeStorage{
		products: []models.Product{{ID: 1, Name: "RTX 3080", Active: true}},
		existing: map[string]bool{"https://www.ebay.com/itm/seen": true},
	}
	parser := &fakeParser{records: map[string][]models.ScrapedOffer{
		"RTX 3080": {
			record("Seen before", 550, "https://www.ebay.com/itm/seen"),
			record("Fresh", 500, "https://www.ebay.com/itm/fresh"),
		},
	}}

	r := New(discardLogger(), st, &fakeFetcher{}, parser, nil, nil, 0, 20)

	created, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	require.Len(t, st.saved, 1)
	assert.Equal(t, "Fresh", st.saved[0].Title)
}

func TestRunOnce_FetchFailureIsolatedPerProduct(t *testing.T) {
	st := &fakeStorage{
		products: []models.Product{
			{ID: 1, Name: "broken", Active: true},
			{ID: 2, Name: "working", Active: true},
		},
	}
	fetcher := &fakeFetcher{
		errFor: map[string]error{"broken": errors.New("connection reset")},
	}
	parser := &fakeParser{records: map[string][]models.ScrapedOffer{
		"working": {record("Good one", 100, "https://www.ebay.com/itm/ok")},
	}}

	r := New(discardLogger(), st, fetcher, parser, nil, nil, 0, 20)

	created, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, PhaseOK, r.Status().Phase)
}

func TestRunOnce_NoActiveProducts(t *testing.T) {
	st := &fakeStorage{}

	r := New(discardLogger(), st, &fakeFetcher{}, &fakeParser{}, nil, nil, 0, 20)

	created, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, PhaseOK, r.Status().Phase)
}

func TestRunOnce_StorageFailureEndsInErrorPhase(t *testing.T) {
	st := &fakeStorage{productsErr: errors.New("db down")}

	r := New(discardLogger(), st, &fakeFetcher{}, &fakeParser{}, nil, nil, 0, 20)

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)

	status := r.Status()
	assert.Equal(t, PhaseError, status.Phase)
	assert.Contains(t, status.LastError, "db down")
}

func TestTriggerRun_RejectsConcurrentRuns(t *testing.T) {
	st := &fakeStorage{
		products: []models.Product{{ID: 1, Name: "RTX 3080", Active: true}},
	}
	fetcher := &fakeFetcher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}

	r := New(discardLogger(), st, fetcher, &fakeParser{}, nil, nil, 0, 20)

	require.NoError(t, r.TriggerRun(context.Background()))

	<-fetcher.started
	assert.Equal(t, PhaseRunning, r.Status().Phase)

	err := r.TriggerRun(context.Background())
	require.ErrorIs(t, err, ErrRunInProgress)

	close(fetcher.release)

	require.Eventually(t, func() bool {
		return r.Status().Phase == PhaseOK
	}, time.Second, 5*time.Millisecond)

	// After the run finishes another trigger is accepted again.
	require.NoError(t, r.TriggerRun(context.Background()))
	require.Eventually(t, func() bool {
		return r.Status().Phase != PhaseRunning
	}, time.Second, 5*time.Millisecond)
}
