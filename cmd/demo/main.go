// The demo binary runs the whole fulfilment workflow in one process over the
// in-memory bus: it seeds stock, places two orders (one that fits the stock
// and one that does not), pays the invoice for the first, and prints what each
// service decided along the way.
package main

import (
	"context"
	"time"

	"github.com/Ramnathnaik/system-design-workspace/internal/inventory"
	"github.com/Ramnathnaik/system-design-workspace/internal/order"
	"github.com/Ramnathnaik/system-design-workspace/internal/workflow"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/Ramnathnaik/system-design-workspace/pkg/metrics"
)

func main() {
	log := logger.New(logger.Config{Level: "debug"})
	metrics.Register()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	local, err := workflow.NewLocal(log)
	if err != nil {
		log.Fatal("failed to build workflow", err)
	}
	defer local.Close()
	local.Start(ctx)

	if err := local.Inventory.PutProduct(ctx, &inventory.Product{
		ProductID:      "PROD-001",
		AvailableStock: 5,
	}); err != nil {
		log.Fatal("failed to seed stock", err)
	}
	log.Info("seeded stock", "product_id", "PROD-001", "available_stock", 5)

	happy := &order.Order{ProductID: "PROD-001", Quantity: 3}
	if err := local.Orders.Create(ctx, happy); err != nil {
		log.Fatal("failed to create order", err)
	}
	log.Info("placed order", "order_id", happy.ID, "quantity", happy.Quantity)

	tooLarge := &order.Order{ProductID: "PROD-001", Quantity: 10}
	if err := local.Orders.Create(ctx, tooLarge); err != nil {
		log.Fatal("failed to create order", err)
	}
	log.Info("placed order", "order_id", tooLarge.ID, "quantity", tooLarge.Quantity)

	if !waitForStatus(ctx, local, happy.ID, order.StatusBilled) {
		log.Fatal("order never reached BILLED", nil, "order_id", happy.ID)
	}
	inv, err := local.Billing.GetInvoice(ctx, happy.ID)
	if err != nil {
		log.Fatal("invoice missing for reserved order", err, "order_id", happy.ID)
	}
	log.Info("invoice created",
		"order_id", inv.OrderID,
		"customer_id", inv.CustomerID,
		"amount_cents", inv.AmountCents)

	if !waitForStatus(ctx, local, tooLarge.ID, order.StatusInventoryFailed) {
		log.Fatal("order never reached INVENTORY_FAILED", nil, "order_id", tooLarge.ID)
	}
	if _, err := local.Billing.GetInvoice(ctx, tooLarge.ID); err == nil {
		log.Fatal("failed reservation must not be invoiced", nil, "order_id", tooLarge.ID)
	}
	log.Info("insufficient stock handled", "order_id", tooLarge.ID)

	if _, err := local.Billing.MarkPaid(ctx, happy.ID); err != nil {
		log.Fatal("failed to pay invoice", err, "order_id", happy.ID)
	}
	if !waitForStatus(ctx, local, happy.ID, order.StatusPaid) {
		log.Fatal("order never reached PAID", nil, "order_id", happy.ID)
	}

	swapped, err := local.Orders.UpdateStatus(ctx, happy.ID, order.StatusPaid, order.StatusCompleted)
	if err != nil || !swapped {
		log.Fatal("failed to complete order", err, "order_id", happy.ID)
	}

	product, err := local.Inventory.GetProduct(ctx, "PROD-001")
	if err != nil {
		log.Fatal("failed to read product", err)
	}
	log.Info("demo finished",
		"completed_order", happy.ID,
		"failed_order", tooLarge.ID,
		"remaining_stock", product.AvailableStock)
}

func waitForStatus(ctx context.Context, local *workflow.Local, orderID int64, want order.Status) bool {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		o, err := local.Orders.Get(ctx, orderID)
		if err == nil && o.Status == want {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}
