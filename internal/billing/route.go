package billing

import (
	"strconv"

	"github.com/Ramnathnaik/system-design-workspace/pkg/capture"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/pkg/errors"
)

// ChangeRoute maps committed invoice changes to the billing-updated topic,
// keyed by order id.
func ChangeRoute() capture.Route {
	return capture.Route{
		Table: Table,
		Topic: events.TopicBillingUpdated,
		Map: func(op string, after map[string]string) (string, interface{}, error) {
			orderID, err := strconv.ParseInt(after["order_id"], 10, 64)
			if err != nil {
				return "", nil, errors.Errorf("invoice change has invalid order_id %q", after["order_id"])
			}
			status := after["status"]
			if status != string(StatusInvoiced) && status != string(StatusPaid) {
				return "", nil, errors.Errorf("invoice change has invalid status %q", status)
			}

			payload := events.BillingUpdated{
				OrderID: orderID,
				Status:  status,
			}
			return after["order_id"], payload, nil
		},
	}
}
