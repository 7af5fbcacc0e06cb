package billing

import (
	"net/http"
	"strconv"

	"github.com/Ramnathnaik/system-design-workspace/pkg/httpserver"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/pkg/errors"
)

// API exposes the billing service's REST surface. Paying an invoice writes
// the status change; the resulting billing-updated event is what moves the
// order forward.
type API struct {
	store  Store
	logger *logger.Logger
}

// NewAPI creates the billing REST handlers.
func NewAPI(store Store, log *logger.Logger) *API {
	return &API{store: store, logger: log}
}

// Routes returns the billing service mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /invoices/{orderId}", a.getInvoice)
	mux.HandleFunc("POST /invoices/{orderId}/pay", a.payInvoice)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (a *API) getInvoice(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(r.PathValue("orderId"), 10, 64)
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	inv, err := a.store.GetInvoice(r.Context(), orderID)
	if errors.Is(err, ErrInvoiceNotFound) {
		httpserver.WriteError(w, http.StatusNotFound, "invoice not found")
		return
	}
	if err != nil {
		a.logger.Error("failed to get invoice", err, "order_id", orderID)
		httpserver.WriteError(w, http.StatusInternalServerError, "failed to get invoice")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, inv)
}

func (a *API) payInvoice(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(r.PathValue("orderId"), 10, 64)
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	inv, err := a.store.MarkPaid(r.Context(), orderID)
	if errors.Is(err, ErrInvoiceNotFound) {
		httpserver.WriteError(w, http.StatusNotFound, "invoice not found")
		return
	}
	if err != nil {
		a.logger.Error("failed to mark invoice paid", err, "order_id", orderID)
		httpserver.WriteError(w, http.StatusInternalServerError, "failed to mark invoice paid")
		return
	}

	a.logger.Info("invoice paid", "order_id", orderID)
	httpserver.WriteJSON(w, http.StatusOK, inv)
}
