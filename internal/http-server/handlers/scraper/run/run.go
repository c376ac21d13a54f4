package runScraper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	resp "github.com/TimoDeg/margin-hunter/internal/lib/api/response"
	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"
	"github.com/TimoDeg/margin-hunter/internal/scraper"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Message string `json:"message"`
}

type RunTrigger interface {
	TriggerRun(ctx context.Context) error
}

func New(
	log *slog.Logger,
	trigger RunTrigger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.scraper.run.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if err := trigger.TriggerRun(r.Context()); err != nil {
			if errors.Is(err, scraper.ErrRunInProgress) {
				log.Info("Ingestion run already in progress")

				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("Ingestion run already in progress"))

				return
			}

			log.Error("Failed to start ingestion run", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Ingestion run started")

		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "Ingestion run started",
		})
	}
}
