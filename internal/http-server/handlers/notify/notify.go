package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "github.com/TimoDeg/margin-hunter/internal/lib/api/response"
	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	validator "github.com/go-playground/validator/v10"
)

type Request struct {
	Message string `json:"message" validate:"required"`
}

type Response struct {
	resp.Response
	Delivered int `json:"delivered"`
}

type Broadcaster interface {
	Configured() bool
	Broadcast(ctx context.Context, message string) int
}

func New(
	log *slog.Logger,
	broadcaster Broadcaster,
	validate *validator.Validate,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.notify.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if !broadcaster.Configured() {
			log.Warn("Notify requested but telegram is not configured")

			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, resp.Error("Telegram is not configured"))

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

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		delivered := broadcaster.Broadcast(ctx, req.Message)

		log.Info("Broadcast finished", slog.Int("delivered", delivered))

		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, Response{
			Response:  resp.OK(),
			Delivered: delivered,
		})
	}
}
