package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/efreitasn/papertrader/internal/engine"
)

// CycleTrigger runs one matching cycle on demand.
type CycleTrigger interface {
	RunOnce(ctx context.Context, now time.Time, force bool) (engine.CycleReport, error)
}

// MatchingHandler exposes manual matching cycles.
type MatchingHandler struct {
	trigger CycleTrigger
	logger  *slog.Logger
}

// NewMatchingHandler creates a new MatchingHandler.
func NewMatchingHandler(trigger CycleTrigger, logger *slog.Logger) *MatchingHandler {
	return &MatchingHandler{trigger: trigger, logger: logger}
}

type cycleResponse struct {
	engine.CycleReport
	DurationMS int64 `json:"duration_ms"`
}

// Run handles POST /matching/run[?force=true]. Outside trading hours the
// cycle is refused unless forced.
func (h *MatchingHandler) Run(w http.ResponseWriter, r *http.Request) {
	force := false
	if f := r.URL.Query().Get("force"); f != "" {
		var err error
		force, err = strconv.ParseBool(f)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "force must be a boolean")
			return
		}
	}

	report, err := h.trigger.RunOnce(r.Context(), time.Now(), force)
	if err != nil {
		mapError(w, err)
		return
	}

	h.logger.Info("manual matching cycle",
		slog.Bool("forced", force),
		slog.Int("completed", report.Completed),
		slog.Int("failed", report.Failed),
	)
	WriteJSON(w, http.StatusOK, cycleResponse{
		CycleReport: report,
		DurationMS:  report.Duration.Milliseconds(),
	})
}
