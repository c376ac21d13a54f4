package notificationsStatus

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "github.com/TimoDeg/margin-hunter/internal/lib/api/response"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Configured bool `json:"configured"`
	Reachable  bool `json:"reachable"`
}

type HealthProber interface {
	Health(ctx context.Context) bool
}

func New(
	log *slog.Logger,
	configured bool,
	prober HealthProber,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.notifications.status.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		reachable := prober.Health(ctx)

		log.Debug("Notification status requested",
			slog.Bool("configured", configured),
			slog.Bool("reachable", reachable),
		)

		render.JSON(w, r, Response{
			Response:   resp.OK(),
			Configured: configured,
			Reachable:  reachable,
		})
	}
}
