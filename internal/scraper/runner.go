package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"
	"github.com/TimoDeg/margin-hunter/internal/models"
	"github.com/TimoDeg/margin-hunter/internal/storage"
)

// ErrRunInProgress is returned to a trigger that arrives while another run is
// active. Triggers are rejected, never queued.
var ErrRunInProgress = errors.New("ingestion run already in progress")

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseOK      Phase = "ok"
	PhaseError   Phase = "error"
)

// RunStatus is the externally observable state of the ingestion loop.
type RunStatus struct {
	Phase       Phase      `json:"status"`
	LastRunAt   *time.Time `json:"last_run_at"`
	LastError   string     `json:"last_error,omitempty"`
	LastCreated int        `json:"last_created"`
}

type Storage interface {
	ActiveProducts(ctx context.Context) ([]models.Product, error)
	OfferExistsByURL(ctx context.Context, offerURL string) (bool, error)
	SaveOfferWithHistory(ctx context.Context, offer models.Offer) (int64, error)
	LatestReferencePrice(ctx context.Context, productID int64) (float64, error)
}

type Fetcher interface {
	Search(ctx context.Context, productName string, filters map[string]string) (string, error)
}

type Parser interface {
	Parse(markup, productName string, scrapedAt time.Time) ([]models.ScrapedOffer, error)
}

// StatusMirror receives best-effort copies of the run status so other
// processes (the API next to a standalone scraper) can observe it.
type StatusMirror interface {
	SetRunStatus(ctx context.Context, status any) error
}

type Publisher interface {
	PublishEvent(ctx context.Context, event models.NotificationEvent) error
}

// Runner orchestrates one ingestion pass: fetch -> parse -> dedupe -> persist,
// product by product, with per-offer error isolation. At most one run is
// active per process; the idle->running transition is a compare-and-swap
// under the runner's mutex.
type Runner struct {
	log             *slog.Logger
	storage         Storage
	fetcher         Fetcher
	parser          Parser
	mirror          StatusMirror // optional
	publisher       Publisher    // optional
	productDelay    time.Duration
	marginThreshold float64

	mu     sync.Mutex
	status RunStatus
}

func New(
	log *slog.Logger,
	st Storage,
	fetcher Fetcher,
	parser Parser,
	mirror StatusMirror,
	publisher Publisher,
	productDelay time.Duration,
	marginThreshold float64,
) *Runner {
	return &Runner{
		log:             log,
		storage:         st,
		fetcher:         fetcher,
		parser:          parser,
		mirror:          mirror,
		publisher:       publisher,
		productDelay:    productDelay,
		marginThreshold: marginThreshold,
		status:          RunStatus{Phase: PhaseIdle},
	}
}

// Status returns a copy of the current run status.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}

// TriggerRun starts an ingestion run asynchronously. The caller gets an
// acknowledgement only; outcomes are observable via Status. Returns
// ErrRunInProgress when a run is already active.
func (r *Runner) TriggerRun(ctx context.Context) error {
	if !r.tryStart(ctx) {
		return ErrRunInProgress
	}

	// The run must outlive the triggering request.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		_, _ = r.run(runCtx)
	}()

	return nil
}

// RunOnce executes a full ingestion run synchronously and returns the number
// of offers created. Used by the standalone scraper binary.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	if !r.tryStart(ctx) {
		return 0, ErrRunInProgress
	}

	return r.run(ctx)
}

// tryStart performs the idle->running transition. It fails without touching
// the in-progress run's state when one is active.
func (r *Runner) tryStart(ctx context.Context) bool {
	r.mu.Lock()
	if r.status.Phase == PhaseRunning {
		r.mu.Unlock()
		return false
	}

	now := time.Now().UTC()
	r.status.Phase = PhaseRunning
	r.status.LastRunAt = &now
	r.status.LastError = ""
	r.mu.Unlock()

	r.mirrorStatus(ctx)

	return true
}

func (r *Runner) run(ctx context.Context) (int, error) {
	const op = "scraper.run"

	created, err := r.ingest(ctx)

	r.mu.Lock()
	if err != nil {
		r.status.Phase = PhaseError
		r.status.LastError = err.Error()
	} else {
		r.status.Phase = PhaseOK
	}
	r.status.LastCreated = created
	r.mu.Unlock()

	r.mirrorStatus(ctx)

	if err != nil {
		r.log.Error("ingestion run failed", slog.String("op", op), sl.Err(err))
		return created, err
	}

	r.log.Info("ingestion run complete", slog.String("op", op), slog.Int("created", created))

	if created > 0 {
		r.publish(ctx, models.NotificationEvent{
			Type:    "run_summary",
			Message: fmt.Sprintf("📈 Margin Hunter: ingestion finished, %d new offers", created),
		})
	}

	return created, nil
}

func (r *Runner) ingest(ctx context.Context) (int, error) {
	const op = "scraper.ingest"

	products, err := r.storage.ActiveProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: load active products: %w", op, err)
	}

	r.log.Info("loaded active products", slog.String("op", op), slog.Int("count", len(products)))

	created := 0

	for i, product := range products {
		select {
		case <-ctx.Done():
			return created, ctx.Err()
		default:
		}

		created += r.ingestProduct(ctx, product)

		// Courtesy delay between products to stay under informal rate limits.
		if i < len(products)-1 {
			r.sleep(ctx, r.productDelay)
		}
	}

	return created, nil
}

// ingestProduct processes one product and returns the number of offers
// created. Fetch, parse and persistence failures are isolated here; they
// never abort the run.
func (r *Runner) ingestProduct(ctx context.Context, product models.Product) int {
	const op = "scraper.ingestProduct"

	log := r.log.With(
		slog.String("op", op),
		slog.Int64("product_id", product.ID),
		slog.String("product", product.Name),
	)

	markup, err := r.fetcher.Search(ctx, product.Name, product.Filters)
	if err != nil {
		log.Warn("search failed, treating as no results", sl.Err(err))
		return 0
	}

	records, err := r.parser.Parse(markup, product.Name, time.Now().UTC())
	if err != nil {
		log.Warn("parse failed, treating as no results", sl.Err(err))
		return 0
	}

	if len(records) == 0 {
		log.Warn("no offers found")
		return 0
	}

	refPrice, hasRef := r.referencePrice(ctx, product.ID, log)

	saved := 0

	for _, record := range records {
		exists, err := r.storage.OfferExistsByURL(ctx, record.URL)
		if err != nil {
			log.Error("dedupe check failed", sl.Err(err), slog.String("url", record.URL))
			continue
		}
		if exists {
			// Known gap: a re-seen URL gets no history append and no
			// last_checked_at refresh.
			log.Debug("skipping duplicate", slog.String("url", record.URL))
			continue
		}

		offer := buildOffer(product.ID, record, refPrice, hasRef)

		if _, err := r.storage.SaveOfferWithHistory(ctx, offer); err != nil {
			if errors.Is(err, storage.ErrOfferExists) {
				log.Debug("lost insert race, skipping duplicate", slog.String("url", record.URL))
				continue
			}

			log.Error("failed to save offer", sl.Err(err), slog.String("url", record.URL))
			continue
		}

		saved++
		log.Info("offer saved",
			slog.String("title", record.Title),
			slog.Float64("price", record.Price),
		)

		if offer.MarginPct != nil && *offer.MarginPct >= r.marginThreshold {
			r.publish(ctx, models.NotificationEvent{
				Type: "deal",
				Message: fmt.Sprintf("💰 %s — $%.2f (margin %.1f%%)\n%s",
					record.Title, record.Price, *offer.MarginPct, record.URL),
			})
		}
	}

	log.Info("product done", slog.Int("saved", saved), slog.Int("candidates", len(records)))

	return saved
}

func (r *Runner) referencePrice(ctx context.Context, productID int64, log *slog.Logger) (float64, bool) {
	refPrice, err := r.storage.LatestReferencePrice(ctx, productID)
	if err != nil {
		if !errors.Is(err, storage.ErrReferenceNotFound) {
			log.Error("reference price lookup failed", sl.Err(err))
		}
		return 0, false
	}

	return refPrice, true
}

// buildOffer maps a scraped record onto a persistable offer, computing margin
// against the reference price when one is known.
func buildOffer(productID int64, record models.ScrapedOffer, refPrice float64, hasRef bool) models.Offer {
	offer := models.Offer{
		ProductID:    productID,
		Title:        record.Title,
		Price:        record.Price,
		Shipping:     record.Shipping,
		URL:          record.URL,
		Source:       record.Source,
		Condition:    record.Condition,
		SellerRating: record.SellerRating,
		Status:       "new",
		FirstSeenAt:  record.ScrapedAt,
		LastChecked:  record.ScrapedAt,
	}

	if hasRef && record.Price > 0 {
		margin := math.Round((refPrice/record.Price-1)*100*10) / 10
		offer.MarginPct = &margin
		offer.RefPrice = &refPrice
	}

	return offer
}

func (r *Runner) mirrorStatus(ctx context.Context) {
	if r.mirror == nil {
		return
	}

	if err := r.mirror.SetRunStatus(ctx, r.Status()); err != nil {
		r.log.Warn("failed to mirror run status", sl.Err(err))
	}
}

func (r *Runner) publish(ctx context.Context, event models.NotificationEvent) {
	if r.publisher == nil {
		return
	}

	if err := r.publisher.PublishEvent(ctx, event); err != nil {
		r.log.Warn("failed to publish notification event", sl.Err(err), slog.String("type", event.Type))
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
