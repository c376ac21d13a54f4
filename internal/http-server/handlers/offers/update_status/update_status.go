package updateOfferStatus

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
	validator "github.com/go-playground/validator/v10"
)

type Request struct {
	Status string `json:"status" validate:"required"`
}

type Response struct {
	resp.Response
	Offer models.Offer `json:"offer"`
}

type OfferStatusUpdater interface {
	UpdateOfferStatus(ctx context.Context, offerID int64, status string) error
	OfferByID(ctx context.Context, offerID int64) (models.Offer, error)
}

func New(
	log *slog.Logger,
	updater OfferStatusUpdater,
	validate *validator.Validate,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.offers.update_status.New"

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

		var req Request

		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := updater.UpdateOfferStatus(ctx, offerID, req.Status); err != nil {
			if errors.Is(err, storage.ErrOfferNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Offer not found"))

				return
			}

			log.Error("Failed to update offer status", sl.Err(err), slog.Int64("offer_id", offerID))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		offer, err := updater.OfferByID(ctx, offerID)
		if err != nil {
			log.Error("Failed to reload offer", sl.Err(err), slog.Int64("offer_id", offerID))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Offer status updated",
			slog.Int64("offer_id", offerID),
			slog.String("status", req.Status),
		)

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
