package createProduct

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "github.com/TimoDeg/margin-hunter/internal/lib/api/response"
	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"
	"github.com/TimoDeg/margin-hunter/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	validator "github.com/go-playground/validator/v10"
)

type Request struct {
	Name     string            `json:"name" validate:"required"`
	Category string            `json:"category" validate:"required"`
	Brands   []string          `json:"brands"`
	Filters  map[string]string `json:"filters"`
	PriceMin float64           `json:"price_min" validate:"gte=0"`
	PriceMax float64           `json:"price_max" validate:"gtefield=PriceMin"`
	Active   *bool             `json:"active"`
}

type Response struct {
	resp.Response
	ProductID int64 `json:"product_id"`
}

type ProductSaver interface {
	SaveProduct(ctx context.Context, product models.Product) (int64, error)
}

func New(
	log *slog.Logger,
	saver ProductSaver,
	validate *validator.Validate,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.products.create.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
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

		active := true
		if req.Active != nil {
			active = *req.Active
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		productID, err := saver.SaveProduct(ctx, models.Product{
			Name:     req.Name,
			Category: req.Category,
			Brands:   req.Brands,
			Filters:  req.Filters,
			PriceMin: req.PriceMin,
			PriceMax: req.PriceMax,
			Active:   active,
		})
		if err != nil {
			log.Error("Failed to save product", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Product saved successfully", slog.Int64("product_id", productID))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response:  resp.OK(),
			ProductID: productID,
		})
	}
}
