package offerHistory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	resp "github.com/TimoDeg/margin-hunter/internal/lib/api/response"
	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"
	"github.com/TimoDeg/margin-hunter/internal/models"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	History []models.PriceHistory `json:"history"`
}

type HistoryProvider interface {
	OfferHistory(ctx context.Context, offerID int64) ([]models.PriceHistory, error)
}

func New(
	log *slog.Logger,
	provider HistoryProvider,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.offers.history.New"

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

		history, err := provider.OfferHistory(ctx, offerID)
		if err != nil {
			log.Error("Failed to get price history", sl.Err(err), slog.Int64("offer_id", offerID))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if history == nil {
			history = []models.PriceHistory{}
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			History:  history,
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
