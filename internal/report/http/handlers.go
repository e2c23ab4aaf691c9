package http

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/report"
)

// Handler wires the aged-receivables report endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *report.Service
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the report handler.
func NewHandler(logger *slog.Logger, service *report.Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{logger: logger, service: service, rateLimit: limiter}
}

// MountRoutes attaches the report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/reports/aged-receivables", h.submit)
	})
	r.Get("/reports/jobs/{id}", h.status)
	r.Get("/reports/jobs/{id}/result", h.result)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req report.Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	job, err := h.service.Enqueue(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	status := http.StatusAccepted
	if job.Status.Terminal() {
		status = http.StatusOK
	}
	httpx.JSON(w, status, job)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, report.ErrInvalidRequest):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, report.ErrJobNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, report.ErrJobExists):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, report.ErrResultNotReady):
		httpx.Problem(w, http.StatusConflict, "Result Not Ready", err.Error())
	default:
		h.logger.Error("report request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
