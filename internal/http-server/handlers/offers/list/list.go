package listOffers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	resp "github.com/TimoDeg/margin-hunter/internal/lib/api/response"
	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"
	"github.com/TimoDeg/margin-hunter/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Offers []models.Offer `json:"offers"`
}

type OffersGetter interface {
	Offers(ctx context.Context, filter models.OfferFilter) ([]models.Offer, error)
}

func New(
	log *slog.Logger,
	offersGetter OffersGetter,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.offers.list.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		filter := parseFilter(r)

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		offers, err := offersGetter.Offers(ctx, filter)
		if err != nil {
			log.Error("Failed to get offers", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if offers == nil {
			offers = []models.Offer{}
		}

		log.Info("Offers retrieved successfully", slog.Int("count", len(offers)))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Offers:   offers,
		})
	}
}

func parseFilter(r *http.Request) models.OfferFilter {
	var filter models.OfferFilter

	query := r.URL.Query()

	filter.Status = query.Get("status")

	if productIDStr := query.Get("product_id"); productIDStr != "" {
		if productID, err := strconv.ParseInt(productIDStr, 10, 64); err == nil && productID > 0 {
			filter.ProductID = productID
		}
	}

	if minMarginStr := query.Get("min_margin"); minMarginStr != "" {
		if minMargin, err := strconv.ParseFloat(minMarginStr, 64); err == nil {
			filter.MinMargin = &minMargin
		}
	}

	return filter
}
