// Package capture turns committed row mutations in a service's database into
// ordered, at-least-once event notifications. A Source tails the committed
// changes of one table and the Relay converts them into envelopes on the bus,
// acknowledging a source position only after the bus accepted the event.
package capture

import "context"

// StartMode controls what a source does on first run, when no position has
// been stored yet. This is an explicit configuration decision: snapshot emits
// every existing row as a create change before streaming, latest streams from
// the current position only.
type StartMode string

const (
	StartModeSnapshot StartMode = "snapshot"
	StartModeLatest   StartMode = "latest"
)

// Change is one committed insert or update on the source table.
type Change struct {
	Op    string            // events.OpCreate or events.OpUpdate
	Table string            // source table name
	After map[string]string // after-image, column name -> text value
	Pos   string            // source position; empty when the source has none
}

// Source is a continuous tail of committed row changes.
type Source interface {
	// Changes starts the tail and returns the change stream. The channel is
	// closed when the source stops.
	Changes(ctx context.Context) (<-chan Change, error)

	// Ack confirms that the change at pos was durably handed off. The source
	// must not advance its restart position past unacknowledged changes.
	Ack(pos string)

	// Close stops the source.
	Close() error
}
