package getOffer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	resp "github.com/TimoDeg/margin-hunter/internal/lib/api/response"
	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"
	"github.com/TimoDeg/margin-hunter/internal/models"
	"github.com/TimoDeg/margin-hunter/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Offer models.Offer `json:"offer"`
}

type OfferProvider interface {
	OfferByID(ctx context.Context, offerID int64) (models.Offer, error)
}

func New(
	log *slog.Logger,
	provider OfferProvider,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.offers.get_by_id.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		offerID := parseOfferID(r)
		if offerID == -1 {
			log.Error("Invalid id")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		offer, err := provider.OfferByID(ctx, offerID)
		if err != nil {
			if errors.Is(err, storage.ErrOfferNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Offer not found"))

				return
			}

			log.Error("Failed to get offer", sl.Err(err), slog.Int64("offer_id", offerID))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Offer:    offer,
		})
	}
}

func parseOfferID(r *http.Request) int64 {
	offerIDStr := chi.URLParam(r, "id")
	if offerIDStr == "" {
		return -1
	}

	offerID, err := strconv.ParseInt(offerIDStr, 10, 64)
	if err != nil || offerID < 0 {
		return -1
	}

	return offerID
}
