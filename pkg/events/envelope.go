package events

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Topics carrying the fulfillment workflow events.
const (
	TopicOrderCreated     = "order-created"
	TopicInventoryUpdated = "inventory-updated"
	TopicBillingUpdated   = "billing-updated"
)

// Operations recorded in the envelope, matching the change capture operation.
const (
	OpCreate = "c"
	OpUpdate = "u"
)

// ErrMalformed marks messages that can never be processed: bad JSON, an unknown
// operation, or a payload missing required fields. Consumers route such
// messages to the dead-letter topic instead of retrying them.
var ErrMalformed = errors.New("malformed event")

// Envelope is the wire format shared by every topic: the capture operation plus
// the business-relevant subset of the row after-image. The id is attached by
// the publisher for log correlation and is not required on decode.
type Envelope struct {
	ID        string          `json:"id,omitempty"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
}

// Decode parses an envelope from raw bytes, defensively.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "decode envelope: %v", err)
	}
	if env.Operation != OpCreate && env.Operation != OpUpdate {
		return nil, errors.Wrapf(ErrMalformed, "unknown operation %q", env.Operation)
	}
	if len(env.Data) == 0 {
		return nil, errors.Wrap(ErrMalformed, "missing data")
	}
	return &env, nil
}

// DecodeData parses the envelope payload into v.
func (e *Envelope) DecodeData(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return errors.Wrapf(ErrMalformed, "decode payload: %v", err)
	}
	return nil
}

// Marshal serializes an envelope for publishing.
func (e *Envelope) Marshal() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope")
	}
	return raw, nil
}
