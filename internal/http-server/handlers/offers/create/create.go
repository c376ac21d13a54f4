package createOffer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	resp "github.com/TimoDeg/margin-hunter/internal/lib/api/response"
	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"
	"github.com/TimoDeg/margin-hunter/internal/models"
	"github.com/TimoDeg/margin-hunter/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	validator "github.com/go-playground/validator/v10"
)

type Request struct {
	ProductID    int64             `json:"product_id" validate:"required,gt=0"`
	Title        string            `json:"title" validate:"required"`
	Price        float64           `json:"price" validate:"required,gt=0"`
	Shipping     float64           `json:"shipping" validate:"gte=0"`
	URL          string            `json:"url" validate:"required,url"`
	ImageURL     *string           `json:"image_url"`
	SellerName   *string           `json:"seller_name"`
	Location     *string           `json:"location"`
	Description  *string           `json:"description"`
	Source       string            `json:"source"`
	Condition    models.Condition  `json:"condition"`
	SellerRating string            `json:"seller_rating"`
	Status       string            `json:"status"`
}

type Response struct {
	resp.Response
	OfferID int64 `json:"offer_id"`
}

type OfferSaver interface {
	SaveOfferWithHistory(ctx context.Context, offer models.Offer) (int64, error)
}

func New(
	log *slog.Logger,
	saver OfferSaver,
	validate *validator.Validate,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.offers.create.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

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

		now := time.Now().UTC()

		offerID, err := saver.SaveOfferWithHistory(ctx, models.Offer{
			ProductID:    req.ProductID,
			Title:        req.Title,
			Price:        req.Price,
			Shipping:     req.Shipping,
			URL:          req.URL,
			ImageURL:     req.ImageURL,
			SellerName:   req.SellerName,
			Location:     req.Location,
			Description:  req.Description,
			Source:       defaultString(req.Source, "ebay"),
			Condition:    defaultCondition(req.Condition),
			SellerRating: defaultString(req.SellerRating, "Unknown"),
			Status:       defaultString(req.Status, "new"),
			FirstSeenAt:  now,
			LastChecked:  now,
		})
		if err != nil {
			if errors.Is(err, storage.ErrOfferExists) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("Offer with this URL already exists"))

				return
			}

			log.Error("Failed to save offer", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Offer saved successfully", slog.Int64("offer_id", offerID))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response: resp.OK(),
			OfferID:  offerID,
		})
	}
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultCondition(value models.Condition) models.Condition {
	if value == "" {
		return models.ConditionUsed
	}
	return value
}
