package order

import (
	"strconv"

	"github.com/Ramnathnaik/system-design-workspace/pkg/capture"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/pkg/errors"
)

// ChangeRoute maps committed changes on the orders table to the
// order-created topic. Only the fields downstream reactors need leave the
// service; the partition key is the order id so events for one order stay
// ordered.
func ChangeRoute() capture.Route {
	return capture.Route{
		Table: Table,
		Topic: events.TopicOrderCreated,
		Map: func(op string, after map[string]string) (string, interface{}, error) {
			id, err := strconv.ParseInt(after["id"], 10, 64)
			if err != nil {
				return "", nil, errors.Errorf("orders change has invalid id %q", after["id"])
			}
			quantity, err := strconv.Atoi(after["quantity"])
			if err != nil {
				return "", nil, errors.Errorf("orders change has invalid quantity %q", after["quantity"])
			}
			productID := after["product_id"]
			if productID == "" {
				return "", nil, errors.New("orders change is missing product_id")
			}

			payload := events.OrderCreated{
				ID:        id,
				ProductID: productID,
				Quantity:  quantity,
			}
			return after["id"], payload, nil
		},
	}
}
