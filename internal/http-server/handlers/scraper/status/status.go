package scraperStatus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	resp "github.com/TimoDeg/margin-hunter/internal/lib/api/response"
	sl "github.com/TimoDeg/margin-hunter/internal/lib/logger"
	"github.com/TimoDeg/margin-hunter/internal/scraper"
	"github.com/TimoDeg/margin-hunter/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Run scraper.RunStatus `json:"run"`
}

type StatusProvider interface {
	Status() scraper.RunStatus
}

// StatusMirror reads back the run status another process mirrored to redis.
type StatusMirror interface {
	GetRunStatus(ctx context.Context) ([]byte, error)
}

func New(
	log *slog.Logger,
	provider StatusProvider,
	mirror StatusMirror,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.scraper.status.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		status := provider.Status()

		// A fresh in-process runner knows nothing about runs executed by the
		// standalone scraper binary; those are only visible via the mirror.
		if status.Phase == scraper.PhaseIdle && status.LastRunAt == nil && mirror != nil {
			if mirrored, ok := mirroredStatus(r.Context(), log, mirror); ok {
				status = mirrored
			}
		}

		log.Debug("Run status requested", slog.String("status", string(status.Phase)))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Run:      status,
		})
	}
}

func mirroredStatus(ctx context.Context, log *slog.Logger, mirror StatusMirror) (scraper.RunStatus, bool) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	data, err := mirror.GetRunStatus(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrStatusNotFound) {
			log.Warn("Failed to read mirrored run status", sl.Err(err))
		}
		return scraper.RunStatus{}, false
	}

	var status scraper.RunStatus
	if err := json.Unmarshal(data, &status); err != nil {
		log.Warn("Failed to decode mirrored run status", sl.Err(err))
		return scraper.RunStatus{}, false
	}

	if status.Phase == "" {
		return scraper.RunStatus{}, false
	}

	return status, true
}
