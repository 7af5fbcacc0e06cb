package inventory

import (
	"strconv"

	"github.com/Ramnathnaik/system-design-workspace/pkg/capture"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/pkg/errors"
)

// ChangeRoute maps committed changes on the inventory table to the
// inventory-updated topic, keyed by order id.
func ChangeRoute() capture.Route {
	return capture.Route{
		Table: Table,
		Topic: events.TopicInventoryUpdated,
		Map: func(op string, after map[string]string) (string, interface{}, error) {
			orderID, err := strconv.ParseInt(after["order_id"], 10, 64)
			if err != nil {
				return "", nil, errors.Errorf("inventory change has invalid order_id %q", after["order_id"])
			}
			status := after["status"]
			if status != string(StatusReserved) && status != string(StatusFailed) {
				return "", nil, errors.Errorf("inventory change has invalid status %q", status)
			}

			payload := events.InventoryUpdated{
				OrderID: orderID,
				Status:  status,
			}
			return after["order_id"], payload, nil
		},
	}
}
