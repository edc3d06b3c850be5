package reconcile

import (
	"errors"
	"net/http"

	apperrors "exambook/pkg/errors"
	httputil "exambook/pkg/http"
	"exambook/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type Handler struct {
	runner *Runner
	log    *logger.Logger
}

func NewHandler(runner *Runner, log *logger.Logger) *Handler {
	return &Handler{
		runner: runner,
		log:    log,
	}
}

func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	report, err := h.runner.Trigger(r.Context())
	if err != nil {
		if errors.Is(err, ErrPassInProgress) {
			h.writeError(w, "Trigger", apperrors.Conflict(err.Error()))
			return
		}
		h.log.Error("Manual reconciliation failed", "error", err)
		h.writeError(w, "Trigger", apperrors.Unavailable("reconciliation", err))
		return
	}

	if err := httputil.WriteSuccess(w, report); err != nil {
		h.log.Error("failed to write success response", "handler", "Trigger", "operation", "WriteSuccess", "error", err)
	}
}

func (h *Handler) Last(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	report, ok := h.runner.Last()
	if !ok {
		h.writeError(w, "Last", apperrors.NotFound("Reconciliation report"))
		return
	}

	if err := httputil.WriteSuccess(w, report); err != nil {
		h.log.Error("failed to write success response", "handler", "Last", "operation", "WriteSuccess", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reconcile", h.Trigger)
	router.GET("/api/v1/reconcile/last", h.Last)
}
