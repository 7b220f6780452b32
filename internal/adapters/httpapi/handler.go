// Package httpapi exposes the inventory service over a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"freshcore/pkg/domain"
)

// BasePath is where the inventory routes are mounted.
const BasePath = "/api/v1/inventory"

// Inventory is the service surface served over HTTP. *core.Service satisfies it.
type Inventory interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListBatches(ctx context.Context) ([]domain.Batch, error)
	ListBatchesByFreshness(ctx context.Context, freshness domain.Freshness) ([]domain.Batch, error)
	GetBatchHistory(ctx context.Context, batchID uuid.UUID) ([]domain.BatchEvent, error)
	FindBatchesWithoutHistory(ctx context.Context) ([]domain.Batch, error)
	AddBatch(ctx context.Context, productID uuid.UUID, batchSize int, expiration time.Time) (domain.Batch, error)
	AddBatchWithDefaultShelfLife(ctx context.Context, productID uuid.UUID, batchSize int) (domain.Batch, error)
	RemoveFromBatch(ctx context.Context, batchID uuid.UUID, quantity int) (domain.Batch, error)
	DisposeBatch(ctx context.Context, batchID uuid.UUID) (domain.Batch, error)
	FixExpirationDate(ctx context.Context, batchID uuid.UUID, expiration time.Time) (domain.Batch, error)
	FixQuantities(ctx context.Context, batchID uuid.UUID, batchSize, availableQuantity int) (domain.Batch, error)
	GetOverviewByFreshness(ctx context.Context) (domain.OverviewByFreshness, error)
}

// Handler translates HTTP requests into inventory operations.
type Handler struct {
	inventory Inventory
}

// Option customises the router built by NewRouter.
type Option func(*routerOptions)

type routerOptions struct {
	metrics   http.Handler
	debugVars http.Handler
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *routerOptions) { o.metrics = h }
}

// WithDebugVars serves h, typically expvar.Handler(), on GET /debug/vars.
func WithDebugVars(h http.Handler) Option {
	return func(o *routerOptions) { o.debugVars = h }
}

// NewRouter builds the chi router with the inventory routes, /healthz and
// optionally /metrics.
func NewRouter(inv Inventory, opts ...Option) http.Handler {
	var o routerOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	h := &Handler{inventory: inv}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if o.metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.metrics)
	}
	if o.debugVars != nil {
		r.Method(http.MethodGet, "/debug/vars", o.debugVars)
	}
	r.Route(BasePath, h.routes)
	return r
}

func (h *Handler) routes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/overview", h.overview)
	r.Route("/batches", func(r chi.Router) {
		r.Get("/", h.listBatches)
		r.Put("/", h.addBatch)
		r.Get("/unrecorded", h.unrecorded)
		r.Get("/freshness/{freshness}", h.listByFreshness)
		r.Route("/{batchID}", func(r chi.Router) {
			r.Get("/history", h.history)
			r.Post("/remove/{quantity}", h.remove)
			r.Post("/dispose", h.dispose)
			r.Patch("/expiration/{expiration}", h.fixExpiration)
			r.Patch("/quantities/{batchSize}/{availableQuantity}", h.fixQuantities)
		})
	})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.inventory.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.inventory.ListBatches(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) listByFreshness(w http.ResponseWriter, r *http.Request) {
	freshness, err := domain.ParseFreshness(chi.URLParam(r, "freshness"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	batches, err := h.inventory.ListBatchesByFreshness(r.Context(), freshness)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"freshness": freshness, "batches": batches})
}

func (h *Handler) unrecorded(w http.ResponseWriter, r *http.Request) {
	batches, err := h.inventory.FindBatchesWithoutHistory(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := batchID(w, r)
	if !ok {
		return
	}
	events, err := h.inventory.GetBatchHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

type addBatchRequest struct {
	ProductID  uuid.UUID  `json:"product_id"`
	BatchSize  int        `json:"batch_size"`
	Expiration *time.Time `json:"expiration,omitempty"`
}

func (h *Handler) addBatch(w http.ResponseWriter, r *http.Request) {
	var req addBatchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	var (
		batch domain.Batch
		err   error
	)
	if req.Expiration == nil {
		batch, err = h.inventory.AddBatchWithDefaultShelfLife(r.Context(), req.ProductID, req.BatchSize)
	} else {
		batch, err = h.inventory.AddBatch(r.Context(), req.ProductID, req.BatchSize, *req.Expiration)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"batch": batch})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := batchID(w, r)
	if !ok {
		return
	}
	quantity, ok := intParam(w, r, "quantity")
	if !ok {
		return
	}
	batch, err := h.inventory.RemoveFromBatch(r.Context(), id, quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (h *Handler) dispose(w http.ResponseWriter, r *http.Request) {
	id, ok := batchID(w, r)
	if !ok {
		return
	}
	batch, err := h.inventory.DisposeBatch(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (h *Handler) fixExpiration(w http.ResponseWriter, r *http.Request) {
	id, ok := batchID(w, r)
	if !ok {
		return
	}
	raw := chi.URLParam(r, "expiration")
	expiration, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "expiration must be RFC 3339: "+raw)
		return
	}
	batch, err := h.inventory.FixExpirationDate(r.Context(), id, expiration)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (h *Handler) fixQuantities(w http.ResponseWriter, r *http.Request) {
	id, ok := batchID(w, r)
	if !ok {
		return
	}
	size, ok := intParam(w, r, "batchSize")
	if !ok {
		return
	}
	available, ok := intParam(w, r, "availableQuantity")
	if !ok {
		return
	}
	batch, err := h.inventory.FixQuantities(r.Context(), id, size, available)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.inventory.GetOverviewByFreshness(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"overview": overview})
}

func batchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "batchID")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch id: "+raw)
		return uuid.Nil, false
	}
	return id, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+": "+raw)
		return 0, false
	}
	return v, true
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var partial *domain.PartialWriteError
	if errors.As(err, &partial) {
		return http.StatusInternalServerError
	}
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	payload := map[string]any{"error": err.Error(), "kind": domain.KindOf(err)}
	var partial *domain.PartialWriteError
	if errors.As(err, &partial) {
		payload["batch_id"] = partial.BatchID
	}
	writeJSON(w, StatusFor(err), payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
