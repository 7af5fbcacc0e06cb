package capture

import (
	"testing"

	"github.com/jackc/pglogrepl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersRelation() *pglogrepl.RelationMessage {
	return &pglogrepl.RelationMessage{
		RelationID:   1,
		RelationName: "orders",
		Columns: []*pglogrepl.RelationMessageColumn{
			{Name: "id"},
			{Name: "product_id"},
			{Name: "quantity"},
			{Name: "status"},
		},
	}
}

func TestDecodeTuple(t *testing.T) {
	tuple := &pglogrepl.TupleData{
		Columns: []*pglogrepl.TupleDataColumn{
			{DataType: 't', Data: []byte("42")},
			{DataType: 't', Data: []byte("PROD-001")},
			{DataType: 't', Data: []byte("3")},
			{DataType: 't', Data: []byte("PENDING")},
		},
	}

	after, err := decodeTuple(ordersRelation(), tuple)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"id":         "42",
		"product_id": "PROD-001",
		"quantity":   "3",
		"status":     "PENDING",
	}, after)
}

func TestDecodeTupleSkipsNullAndUnchanged(t *testing.T) {
	tuple := &pglogrepl.TupleData{
		Columns: []*pglogrepl.TupleDataColumn{
			{DataType: 't', Data: []byte("42")},
			{DataType: 'n'},
			{DataType: 'u'},
			{DataType: 't', Data: []byte("PENDING")},
		},
	}

	after, err := decodeTuple(ordersRelation(), tuple)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "42", "status": "PENDING"}, after)
	assert.NotContains(t, after, "product_id")
	assert.NotContains(t, after, "quantity")
}

func TestDecodeTupleErrors(t *testing.T) {
	rel := ordersRelation()

	_, err := decodeTuple(rel, nil)
	assert.Error(t, err)

	_, err = decodeTuple(rel, &pglogrepl.TupleData{
		Columns: []*pglogrepl.TupleDataColumn{{DataType: 't', Data: []byte("42")}},
	})
	assert.Error(t, err, "column count mismatch must fail")

	_, err = decodeTuple(rel, &pglogrepl.TupleData{
		Columns: []*pglogrepl.TupleDataColumn{
			{DataType: 'b', Data: []byte{0x01}},
			{DataType: 't', Data: []byte("PROD-001")},
			{DataType: 't', Data: []byte("3")},
			{DataType: 't', Data: []byte("PENDING")},
		},
	})
	assert.Error(t, err, "binary columns are not supported")
}

func TestWALSourceConfigDefaults(t *testing.T) {
	src, err := NewWALSource(WALConfig{
		DatabaseURL: "postgres://localhost:5432/orders",
		Table:       "orders",
	}, nil, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "orders_slot", src.cfg.ReplicationSlotName)
	assert.Equal(t, "orders_pub", src.cfg.PublicationName)
	assert.Equal(t, StartModeLatest, src.cfg.StartMode)
}

func TestWALSourceConfigValidation(t *testing.T) {
	_, err := NewWALSource(WALConfig{Table: "orders"}, nil, testLogger())
	assert.Error(t, err)

	_, err = NewWALSource(WALConfig{DatabaseURL: "postgres://localhost"}, nil, testLogger())
	assert.Error(t, err)
}

func TestReplicationURL(t *testing.T) {
	assert.Equal(t,
		"postgres://localhost:5432/orders?replication=database",
		replicationURL("postgres://localhost:5432/orders"))
	assert.Equal(t,
		"postgres://localhost:5432/orders?sslmode=disable&replication=database",
		replicationURL("postgres://localhost:5432/orders?sslmode=disable"))
}
