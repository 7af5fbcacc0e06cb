package order

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Ramnathnaik/system-design-workspace/pkg/httpserver"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/pkg/errors"
)

// API exposes the order service's REST surface: thin pass-throughs to the
// store. Creating an order only writes the row; everything downstream happens
// through change capture. Complete and cancel are the manual resolution
// endpoints for terminal states.
type API struct {
	store  Store
	logger *logger.Logger
}

// NewAPI creates the order REST handlers.
func NewAPI(store Store, log *logger.Logger) *API {
	return &API{store: store, logger: log}
}

// Routes returns the order service mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", a.createOrder)
	mux.HandleFunc("GET /orders", a.listOrders)
	mux.HandleFunc("GET /orders/{id}", a.getOrder)
	mux.HandleFunc("POST /orders/{id}/complete", a.resolve(StatusPaid, StatusCompleted))
	mux.HandleFunc("POST /orders/{id}/cancel", a.cancelOrder)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" || req.Quantity <= 0 {
		httpserver.WriteError(w, http.StatusBadRequest, "product_id and a positive quantity are required")
		return
	}

	o := &Order{ProductID: req.ProductID, Quantity: req.Quantity, Status: StatusPending}
	if err := a.store.Create(r.Context(), o); err != nil {
		a.logger.Error("failed to create order", err)
		httpserver.WriteError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	a.logger.Info("order created", "order_id", o.ID, "product_id", o.ProductID, "quantity", o.Quantity)
	httpserver.WriteJSON(w, http.StatusCreated, o)
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.store.List(r.Context())
	if err != nil {
		a.logger.Error("failed to list orders", err)
		httpserver.WriteError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpserver.WriteJSON(w, http.StatusOK, orders)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := a.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httpserver.WriteError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		a.logger.Error("failed to get order", err, "order_id", id)
		httpserver.WriteError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, o)
}

// resolve returns a handler that moves an order from one exact status to
// another, for the manual terminal transitions.
func (a *API) resolve(from, to Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			httpserver.WriteError(w, http.StatusBadRequest, "invalid order id")
			return
		}

		swapped, err := a.store.UpdateStatus(r.Context(), id, from, to)
		if errors.Is(err, ErrNotFound) {
			httpserver.WriteError(w, http.StatusNotFound, "order not found")
			return
		}
		if err != nil {
			a.logger.Error("failed to update order status", err, "order_id", id)
			httpserver.WriteError(w, http.StatusInternalServerError, "failed to update order")
			return
		}
		if !swapped {
			httpserver.WriteError(w, http.StatusConflict, "order is not in status "+string(from))
			return
		}

		o, err := a.store.Get(r.Context(), id)
		if err != nil {
			httpserver.WriteError(w, http.StatusInternalServerError, "failed to reload order")
			return
		}
		httpserver.WriteJSON(w, http.StatusOK, o)
	}
}

func (a *API) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := a.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httpserver.WriteError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		a.logger.Error("failed to get order", err, "order_id", id)
		httpserver.WriteError(w, http.StatusInternalServerError, "failed to get order")
		return
	}

	if !o.Status.CanAdvanceTo(StatusCancelled) {
		httpserver.WriteError(w, http.StatusConflict, "order is already in a terminal status")
		return
	}

	swapped, err := a.store.UpdateStatus(r.Context(), id, o.Status, StatusCancelled)
	if err != nil {
		a.logger.Error("failed to cancel order", err, "order_id", id)
		httpserver.WriteError(w, http.StatusInternalServerError, "failed to cancel order")
		return
	}
	if !swapped {
		httpserver.WriteError(w, http.StatusConflict, "order status changed concurrently")
		return
	}

	o.Status = StatusCancelled
	httpserver.WriteJSON(w, http.StatusOK, o)
}
