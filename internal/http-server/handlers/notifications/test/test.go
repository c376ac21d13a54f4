package testNotification

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "github.com/TimoDeg/margin-hunter/internal/lib/api/response"
	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Request struct {
	Message string `json:"message"`
}

type Response struct {
	resp.Response
	Message string `json:"message"`
}

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

func New(
	log *slog.Logger,
	configured bool,
	notifier Notifier,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.notifications.test.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if !configured {
			log.Warn("Test notification requested but telegram is not configured")

			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, resp.Error("Telegram is not configured"))

			return
		}

		var req Request

		// Body is optional, an empty or missing one falls back to the
		// default message.
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		_ = render.DecodeJSON(r.Body, &req)

		if req.Message == "" {
			req.Message = "🔔 Margin Hunter: test notification"
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := notifier.Notify(ctx, req.Message); err != nil {
			log.Error("Failed to deliver test notification", sl.Err(err))

			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, resp.Error("Failed to deliver notification"))

			return
		}

		log.Info("Test notification delivered")

		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  req.Message,
		})
	}
}
