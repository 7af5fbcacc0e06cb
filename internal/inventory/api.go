package inventory

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Ramnathnaik/system-design-workspace/pkg/httpserver"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/pkg/errors"
)

// API exposes the inventory service's REST surface.
type API struct {
	store  Store
	logger *logger.Logger
}

// NewAPI creates the inventory REST handlers.
func NewAPI(store Store, log *logger.Logger) *API {
	return &API{store: store, logger: log}
}

// Routes returns the inventory service mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /inventory/{orderId}", a.getReservation)
	mux.HandleFunc("GET /products/{id}", a.getProduct)
	mux.HandleFunc("PUT /products/{id}", a.putProduct)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (a *API) getReservation(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(r.PathValue("orderId"), 10, 64)
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	res, err := a.store.GetReservation(r.Context(), orderID)
	if errors.Is(err, ErrReservationNotFound) {
		httpserver.WriteError(w, http.StatusNotFound, "reservation not found")
		return
	}
	if err != nil {
		a.logger.Error("failed to get reservation", err, "order_id", orderID)
		httpserver.WriteError(w, http.StatusInternalServerError, "failed to get reservation")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, res)
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.GetProduct(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrProductNotFound) {
		httpserver.WriteError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		a.logger.Error("failed to get product", err)
		httpserver.WriteError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, p)
}

func (a *API) putProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AvailableStock int `json:"available_stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AvailableStock < 0 {
		httpserver.WriteError(w, http.StatusBadRequest, "available_stock must not be negative")
		return
	}

	p := &Product{ProductID: r.PathValue("id"), AvailableStock: req.AvailableStock}
	if err := a.store.PutProduct(r.Context(), p); err != nil {
		a.logger.Error("failed to upsert product", err, "product_id", p.ProductID)
		httpserver.WriteError(w, http.StatusInternalServerError, "failed to upsert product")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, p)
}
