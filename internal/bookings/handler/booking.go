package handler

import (
	"encoding/json"
	"net/http"

	"exambook/internal/bookings/service"
	apperrors "exambook/pkg/errors"
	httputil "exambook/pkg/http"
	"exambook/pkg/logger"
	"exambook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var intent model.BookingIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	result, err := h.service.Create(r.Context(), &intent)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	write := httputil.WriteCreated
	if result.IdempotentReplay {
		write = httputil.WriteSuccess
	}
	if err := write(w, result); err != nil {
		h.log.Error("failed to write booking response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	booking, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	booking, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) ListBySession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	bookings, err := h.service.ListBySession(r.Context(), id)
	if err != nil {
		h.writeError(w, "ListBySession", err)
		return
	}

	if err := httputil.WriteList(w, bookings, len(bookings)); err != nil {
		h.log.Error("failed to write list response", "handler", "ListBySession", "operation", "WriteList", "error", err)
	}
}

func (h *BookingHandler) ListByRequester(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	bookings, err := h.service.ListByRequester(r.Context(), id)
	if err != nil {
		h.writeError(w, "ListByRequester", err)
		return
	}

	if err := httputil.WriteList(w, bookings, len(bookings)); err != nil {
		h.log.Error("failed to write list response", "handler", "ListByRequester", "operation", "WriteList", "error", err)
	}
}

func (h *BookingHandler) Capacity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	snapshot, err := h.service.Capacity(r.Context(), id)
	if err != nil {
		h.writeError(w, "Capacity", err)
		return
	}

	if err := httputil.WriteSuccess(w, snapshot); err != nil {
		h.log.Error("failed to write success response", "handler", "Capacity", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.POST("/api/v1/bookings/id/:id/cancel", h.Cancel)
	router.GET("/api/v1/sessions/:id/bookings", h.ListBySession)
	router.GET("/api/v1/sessions/:id/capacity", h.Capacity)
	router.GET("/api/v1/requesters/:id/bookings", h.ListByRequester)
}
