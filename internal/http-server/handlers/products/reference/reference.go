package setReference

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
	Source string  `json:"source" validate:"required"`
	Price  float64 `json:"price" validate:"required,gt=0"`
	URL    *string `json:"url"`
}

type Response struct {
	resp.Response
}

type ReferenceUpserter interface {
	UpsertReferencePrice(ctx context.Context, ref models.PriceReference) error
}

func New(
	log *slog.Logger,
	upserter ReferenceUpserter,
	validate *validator.Validate,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.products.reference.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		productID := parseProductID(r)
		if productID == -1 {
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

		err := upserter.UpsertReferencePrice(ctx, models.PriceReference{
			ProductID: productID,
			Source:    req.Source,
			Price:     req.Price,
			URL:       req.URL,
		})
		if err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Product not found"))

				return
			}

			log.Error("Failed to upsert reference price", sl.Err(err), slog.Int64("product_id", productID))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Reference price stored",
			slog.Int64("product_id", productID),
			slog.String("source", req.Source),
			slog.Float64("price", req.Price),
		)

		render.JSON(w, r, Response{
			Response: resp.OK(),
		})
	}
}

func parseProductID(r *http.Request) int64 {
	productIDStr := chi.URLParam(r, "id")
	if productIDStr == "" {
		return -1
	}

	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID < 0 {
		return -1
	}

	return productID
}
