package updateProduct

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

// All fields are optional; absent fields keep their stored value.
type Request struct {
	Name     *string           `json:"name"`
	Category *string           `json:"category"`
	Brands   []string          `json:"brands"`
	Filters  map[string]string `json:"filters"`
	PriceMin *float64          `json:"price_min"`
	PriceMax *float64          `json:"price_max"`
	Active   *bool             `json:"active"`
}

type Response struct {
	resp.Response
	Product models.Product `json:"product"`
}

type ProductUpdater interface {
	ProductByID(ctx context.Context, productID int64) (models.Product, error)
	UpdateProduct(ctx context.Context, product models.Product) error
}

func New(
	log *slog.Logger,
	updater ProductUpdater,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.products.update.New"

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

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		product, err := updater.ProductByID(ctx, productID)
		if err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Product not found"))

				return
			}

			log.Error("Failed to get product", sl.Err(err), slog.Int64("product_id", productID))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		applyRequest(&product, req)

		if product.PriceMin > product.PriceMax {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("price_min must not exceed price_max"))

			return
		}

		if err := updater.UpdateProduct(ctx, product); err != nil {
			if errors.Is(err, storage.ErrProductNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Product not found"))

				return
			}

			log.Error("Failed to update product", sl.Err(err), slog.Int64("product_id", productID))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Product updated successfully", slog.Int64("product_id", productID))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Product:  product,
		})
	}
}

func applyRequest(product *models.Product, req Request) {
	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Category != nil {
		product.Category = *req.Category
	}
	if req.Brands != nil {
		product.Brands = req.Brands
	}
	if req.Filters != nil {
		product.Filters = req.Filters
	}
	if req.PriceMin != nil {
		product.PriceMin = *req.PriceMin
	}
	if req.PriceMax != nil {
		product.PriceMax = *req.PriceMax
	}
	if req.Active != nil {
		product.Active = *req.Active
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
