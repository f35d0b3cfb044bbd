package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-order-worker/internal/config"
	"ms-order-worker/internal/logger"
	"ms-order-worker/internal/models"
	"ms-order-worker/internal/order/db"
	"ms-order-worker/internal/registry"
	"ms-order-worker/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const checkTimeout = 2 * time.Second

type OrderReader interface {
	FindOrder(ctx context.Context, orderUUID uuid.UUID) (*models.Order, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type BrokerHealth interface {
	Healthy() bool
}

type WorkerLister interface {
	List(ctx context.Context) ([]registry.WorkerInfo, error)
}

// Handler serves the worker's read-only status endpoints.
type Handler struct {
	WorkerName string
	Orders     OrderReader
	Database   Pinger
	Broker     BrokerHealth
	Workers    WorkerLister // nil when the registry is disabled
	Logger     *logger.Logger
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.logRequests)

	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/orders/{orderUUID}", h.GetOrder)
		r.Get("/workers", h.ListWorkers)
	})
	return r
}

type healthStatus struct {
	Worker   string `json:"worker"`
	Database string `json:"database"`
	Broker   string `json:"broker"`
	Registry string `json:"registry"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	status := healthStatus{Worker: h.WorkerName, Database: "up", Broker: "up", Registry: "disabled"}
	healthy := true

	if err := h.Database.Ping(ctx); err != nil {
		status.Database = "down"
		healthy = false
	}
	if !h.Broker.Healthy() {
		status.Broker = "down"
		healthy = false
	}
	if h.Workers != nil {
		status.Registry = "up"
		if pinger, ok := h.Workers.(Pinger); ok {
			if err := pinger.Ping(ctx); err != nil {
				status.Registry = "down"
			}
		}
	}

	if !healthy {
		h.write(w, http.StatusServiceUnavailable, utils.APIResponse{
			Success:   false,
			Message:   "Worker is unhealthy",
			Data:      status,
			Timestamp: time.Now().UTC(),
		})
		return
	}
	h.write(w, http.StatusOK, utils.SuccessResponse("Worker is healthy", status))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderUUID, err := uuid.Parse(chi.URLParam(r, "orderUUID"))
	if err != nil {
		h.write(w, http.StatusBadRequest, utils.ErrorResponse("Invalid order uuid", err.Error()))
		return
	}

	order, err := h.Orders.FindOrder(r.Context(), orderUUID)
	if errors.Is(err, db.ErrOrderNotFound) {
		h.write(w, http.StatusNotFound, utils.ErrorResponse("Order not found", orderUUID.String()))
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to load order %s: %v", orderUUID, err))
		h.write(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to load order", err.Error()))
		return
	}

	h.write(w, http.StatusOK, utils.SuccessResponse("Order retrieved", order))
}

func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	if h.Workers == nil {
		h.write(w, http.StatusServiceUnavailable, utils.ErrorResponse("Worker registry disabled", "redis is not configured"))
		return
	}

	workers, err := h.Workers.List(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to list workers: %v", err))
		h.write(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to list workers", err.Error()))
		return
	}
	if workers == nil {
		workers = []registry.WorkerInfo{}
	}
	h.write(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d workers online", len(workers)), workers))
}

func (h *Handler) write(w http.ResponseWriter, status int, body utils.APIResponse) {
	if err := utils.WriteJSON(w, status, body); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Failed to write response: %v", err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.Logger.LogAPI(r.Method, r.URL.Path, fmt.Sprint(rec.status), time.Since(start).String())
	})
}

// NewServer wraps the status routes in an http.Server using cfg's timeouts.
func NewServer(cfg config.ServerConfig, h *Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Port,
		Handler:      h.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
