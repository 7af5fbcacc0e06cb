package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Ramnathnaik/system-design-workspace/pkg/capture/offset"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/Ramnathnaik/system-design-workspace/pkg/metrics"
	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/pkg/errors"
)

const pluginName = "pgoutput"

// WALConfig represents the configuration for the WAL source
type WALConfig struct {
	DatabaseURL         string
	Table               string
	ReplicationSlotName string
	PublicationName     string
	StartMode           StartMode
}

// WALSource tails the PostgreSQL write-ahead log through a logical
// replication slot and emits committed inserts and updates on one table.
// Restart resumes from the slot's confirmed position, which only advances
// when changes are acknowledged, so a crash between commit and
// acknowledgement re-emits (at-least-once).
type WALSource struct {
	cfg       WALConfig
	replConn  *pgconn.PgConn // connection in replication mode
	queryConn *pgx.Conn      // connection for regular queries
	offsets   *offset.Store
	logger    *logger.Logger
	changes   chan Change
	relations map[uint32]*pglogrepl.RelationMessage

	mu       sync.Mutex
	ackedLSN pglogrepl.LSN
}

// NewWALSource creates a new WAL source. The offset store is optional; when
// present it guards the one-time snapshot and mirrors acknowledged positions.
func NewWALSource(cfg WALConfig, offsets *offset.Store, log *logger.Logger) (*WALSource, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	if cfg.Table == "" {
		return nil, errors.New("source table is required")
	}
	if cfg.ReplicationSlotName == "" {
		cfg.ReplicationSlotName = cfg.Table + "_slot"
	}
	if cfg.PublicationName == "" {
		cfg.PublicationName = cfg.Table + "_pub"
	}
	if cfg.StartMode == "" {
		cfg.StartMode = StartModeLatest
	}

	return &WALSource{
		cfg:       cfg,
		offsets:   offsets,
		logger:    log,
		changes:   make(chan Change, 100),
		relations: make(map[uint32]*pglogrepl.RelationMessage),
	}, nil
}

// Changes connects, bootstraps the publication and slot, optionally snapshots
// existing rows, and starts streaming.
func (w *WALSource) Changes(ctx context.Context) (<-chan Change, error) {
	var err error
	w.replConn, err = pgconn.Connect(ctx, replicationURL(w.cfg.DatabaseURL))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database for replication")
	}

	w.queryConn, err = pgx.Connect(ctx, w.cfg.DatabaseURL)
	if err != nil {
		w.Close()
		return nil, errors.Wrap(err, "failed to connect to database for queries")
	}

	if err := w.ensurePublication(ctx); err != nil {
		w.Close()
		return nil, err
	}

	if err := w.ensureReplicationSlot(ctx); err != nil {
		w.Close()
		return nil, err
	}

	startLSN, err := w.startPosition(ctx)
	if err != nil {
		w.Close()
		return nil, err
	}

	go w.run(ctx, startLSN)

	return w.changes, nil
}

// Ack confirms a change position. The standby status update only ever carries
// acknowledged positions, so the slot never advances past unpublished changes.
func (w *WALSource) Ack(pos string) {
	lsn, err := pglogrepl.ParseLSN(pos)
	if err != nil {
		w.logger.Warn("ignoring invalid ack position", "pos", pos)
		return
	}

	w.mu.Lock()
	if lsn > w.ackedLSN {
		w.ackedLSN = lsn
	}
	w.mu.Unlock()

	if w.offsets != nil {
		if err := w.offsets.SetLastAcked(w.cfg.Table, pos); err != nil {
			w.logger.Warn("failed to persist acked position", "pos", pos, "error", err.Error())
		}
	}
}

// Close closes the source.
func (w *WALSource) Close() error {
	if w.replConn != nil {
		w.replConn.Close(context.Background())
	}
	if w.queryConn != nil {
		w.queryConn.Close(context.Background())
	}
	return nil
}

func replicationURL(databaseURL string) string {
	if strings.Contains(databaseURL, "?") {
		return databaseURL + "&replication=database"
	}
	return databaseURL + "?replication=database"
}

// ensurePublication ensures a publication scoped to the source table exists.
func (w *WALSource) ensurePublication(ctx context.Context) error {
	var exists bool
	err := w.queryConn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_publication WHERE pubname = $1)",
		w.cfg.PublicationName).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "failed to check if publication exists")
	}

	if !exists {
		_, err = w.queryConn.Exec(ctx, fmt.Sprintf("CREATE PUBLICATION %s FOR TABLE %s",
			w.cfg.PublicationName, w.cfg.Table))
		if err != nil {
			return errors.Wrap(err, "failed to create publication")
		}
		w.logger.Info("created publication", "name", w.cfg.PublicationName, "table", w.cfg.Table)
	}

	return nil
}

// ensureReplicationSlot ensures the replication slot exists.
func (w *WALSource) ensureReplicationSlot(ctx context.Context) error {
	var exists bool
	err := w.queryConn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_replication_slots WHERE slot_name = $1)",
		w.cfg.ReplicationSlotName).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "failed to check if replication slot exists")
	}

	if !exists {
		_, err = w.queryConn.Exec(ctx, fmt.Sprintf("SELECT pg_create_logical_replication_slot('%s', '%s')",
			w.cfg.ReplicationSlotName, pluginName))
		if err != nil {
			return errors.Wrap(err, "failed to create replication slot")
		}
		w.logger.Info("created replication slot", "name", w.cfg.ReplicationSlotName)
	}

	return nil
}

// startPosition picks where streaming resumes: the slot's confirmed position
// when present, the locally mirrored position as a fallback, and the current
// WAL head on a fresh start.
func (w *WALSource) startPosition(ctx context.Context) (pglogrepl.LSN, error) {
	var confirmed *string
	err := w.queryConn.QueryRow(ctx,
		"SELECT confirmed_flush_lsn::text FROM pg_replication_slots WHERE slot_name = $1",
		w.cfg.ReplicationSlotName).Scan(&confirmed)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read confirmed position")
	}
	if confirmed != nil {
		return pglogrepl.ParseLSN(*confirmed)
	}

	if w.offsets != nil {
		stored, err := w.offsets.LastAcked(w.cfg.Table)
		if err == nil && stored != "" {
			return pglogrepl.ParseLSN(stored)
		}
	}

	sysident, err := pglogrepl.IdentifySystem(ctx, w.replConn)
	if err != nil {
		return 0, errors.Wrap(err, "failed to identify system")
	}
	return sysident.XLogPos, nil
}

// run emits the optional snapshot and then streams until the context ends.
func (w *WALSource) run(ctx context.Context, startLSN pglogrepl.LSN) {
	defer close(w.changes)

	if w.cfg.StartMode == StartModeSnapshot {
		if err := w.snapshot(ctx); err != nil {
			w.logger.Error("snapshot failed", err, "table", w.cfg.Table)
			metrics.CaptureErrors.WithLabelValues(w.cfg.Table, "snapshot").Inc()
			return
		}
	}

	err := pglogrepl.StartReplication(ctx, w.replConn, w.cfg.ReplicationSlotName, startLSN,
		pglogrepl.StartReplicationOptions{
			PluginArgs: []string{
				"proto_version '1'",
				fmt.Sprintf("publication_names '%s'", w.cfg.PublicationName),
			},
		})
	if err != nil {
		w.logger.Error("failed to start replication", err, "slot", w.cfg.ReplicationSlotName)
		metrics.CaptureErrors.WithLabelValues(w.cfg.Table, "start_replication").Inc()
		return
	}

	w.logger.Info("started replication",
		"slot", w.cfg.ReplicationSlotName,
		"table", w.cfg.Table,
		"start_lsn", startLSN.String())

	standbyMessageTimeout := time.Second * 10
	nextStandbyMessageDeadline := time.Now().Add(standbyMessageTimeout)
	xLogPos := startLSN

	for {
		if ctx.Err() != nil {
			return
		}

		if time.Now().After(nextStandbyMessageDeadline) {
			if err := w.sendStandbyStatus(ctx, xLogPos); err != nil {
				w.logger.Error("failed to send standby status update", err)
				return
			}
			nextStandbyMessageDeadline = time.Now().Add(standbyMessageTimeout)
		}

		receiveCtx, cancel := context.WithTimeout(ctx, time.Second*5)
		rawMsg, err := w.replConn.ReceiveMessage(receiveCtx)
		cancel()
		if err != nil {
			if pgconn.Timeout(err) || errors.Is(err, context.Canceled) {
				continue
			}
			if pgErr, ok := err.(*pgconn.PgError); ok {
				w.logger.Error("received PG error", pgErr, "code", pgErr.Code)
			} else {
				w.logger.Error("failed to receive message", err)
			}
			metrics.CaptureErrors.WithLabelValues(w.cfg.Table, "receive").Inc()
			time.Sleep(1 * time.Second)
			continue
		}

		copyData, ok := rawMsg.(*pgproto3.CopyData)
		if !ok {
			continue
		}

		switch copyData.Data[0] {
		case pglogrepl.PrimaryKeepaliveMessageByteID:
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(copyData.Data[1:])
			if err != nil {
				w.logger.Error("failed to parse primary keepalive message", err)
				continue
			}
			if pkm.ReplyRequested {
				if err := w.sendStandbyStatus(ctx, xLogPos); err != nil {
					w.logger.Error("failed to send standby status update", err)
					return
				}
				nextStandbyMessageDeadline = time.Now().Add(standbyMessageTimeout)
			}

		case pglogrepl.XLogDataByteID:
			xld, err := pglogrepl.ParseXLogData(copyData.Data[1:])
			if err != nil {
				w.logger.Error("failed to parse XLog data", err)
				continue
			}

			xLogPos = xld.WALStart + pglogrepl.LSN(len(xld.WALData))

			logicalMsg, err := pglogrepl.Parse(xld.WALData)
			if err != nil {
				// A record the plugin cannot parse must not stall the
				// whole change stream.
				w.logger.Error("failed to parse logical replication message", err)
				metrics.CaptureErrors.WithLabelValues(w.cfg.Table, "parse").Inc()
				continue
			}

			w.processMessage(ctx, logicalMsg, xLogPos)
		}
	}
}

// sendStandbyStatus reports the highest acknowledged position to the server.
func (w *WALSource) sendStandbyStatus(ctx context.Context, received pglogrepl.LSN) error {
	w.mu.Lock()
	acked := w.ackedLSN
	w.mu.Unlock()

	update := pglogrepl.StandbyStatusUpdate{WALWritePosition: received}
	if acked > 0 {
		update.WALFlushPosition = acked
		update.WALApplyPosition = acked
	}
	return pglogrepl.SendStandbyStatusUpdate(ctx, w.replConn, update)
}

// processMessage filters the logical stream down to inserts and updates on
// the configured table.
func (w *WALSource) processMessage(ctx context.Context, msg pglogrepl.Message, pos pglogrepl.LSN) {
	switch msg := msg.(type) {
	case *pglogrepl.RelationMessage:
		w.relations[msg.RelationID] = msg

	case *pglogrepl.InsertMessage:
		w.emitTuple(ctx, events.OpCreate, msg.RelationID, msg.Tuple, pos)

	case *pglogrepl.UpdateMessage:
		w.emitTuple(ctx, events.OpUpdate, msg.RelationID, msg.NewTuple, pos)

	default:
		// Begin, Commit, Delete, Truncate carry nothing the workflow reacts to.
	}
}

func (w *WALSource) emitTuple(ctx context.Context, op string, relationID uint32, tuple *pglogrepl.TupleData, pos pglogrepl.LSN) {
	rel, ok := w.relations[relationID]
	if !ok {
		w.logger.Warn("received tuple for unknown relation, skipping", "relation_id", relationID)
		metrics.CaptureErrors.WithLabelValues(w.cfg.Table, "unknown_relation").Inc()
		return
	}
	if rel.RelationName != w.cfg.Table {
		return
	}

	after, err := decodeTuple(rel, tuple)
	if err != nil {
		// Schema-incompatible records are logged and skipped.
		w.logger.Warn("skipping undecodable tuple",
			"table", rel.RelationName,
			"op", op,
			"error", err.Error())
		metrics.CaptureErrors.WithLabelValues(w.cfg.Table, "decode").Inc()
		return
	}

	metrics.ChangesCaptured.WithLabelValues(w.cfg.Table, op).Inc()

	select {
	case w.changes <- Change{Op: op, Table: rel.RelationName, After: after, Pos: pos.String()}:
	case <-ctx.Done():
	}
}

// decodeTuple builds the after-image from a pgoutput tuple. Columns are sent
// in text format; null and unchanged-TOAST columns are omitted.
func decodeTuple(rel *pglogrepl.RelationMessage, tuple *pglogrepl.TupleData) (map[string]string, error) {
	if tuple == nil {
		return nil, errors.New("missing tuple data")
	}
	if len(tuple.Columns) != len(rel.Columns) {
		return nil, errors.Errorf("tuple has %d columns, relation has %d",
			len(tuple.Columns), len(rel.Columns))
	}

	after := make(map[string]string, len(tuple.Columns))
	for i, col := range tuple.Columns {
		switch col.DataType {
		case 'n', 'u':
			// null or unchanged TOAST
		case 't':
			after[rel.Columns[i].Name] = string(col.Data)
		default:
			return nil, errors.Errorf("unsupported column data type %q", col.DataType)
		}
	}
	return after, nil
}

// snapshot emits every existing row as a create change, once. Rows written
// while the snapshot runs are picked up by the stream that follows; reactors
// absorb the resulting duplicates.
func (w *WALSource) snapshot(ctx context.Context) error {
	if w.offsets != nil {
		done, err := w.offsets.SnapshotDone(w.cfg.Table)
		if err != nil {
			return errors.Wrap(err, "failed to read snapshot marker")
		}
		if done {
			return nil
		}
	}

	rows, err := w.queryConn.Query(ctx, fmt.Sprintf("SELECT * FROM %s", w.cfg.Table))
	if err != nil {
		return errors.Wrap(err, "failed to query snapshot rows")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	count := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return errors.Wrap(err, "failed to read snapshot row")
		}

		after := make(map[string]string, len(fields))
		for i, field := range fields {
			if values[i] == nil {
				continue
			}
			switch v := values[i].(type) {
			case string:
				after[field.Name] = v
			case []byte:
				after[field.Name] = string(v)
			default:
				after[field.Name] = fmt.Sprintf("%v", v)
			}
		}

		metrics.ChangesCaptured.WithLabelValues(w.cfg.Table, events.OpCreate).Inc()
		select {
		case w.changes <- Change{Op: events.OpCreate, Table: w.cfg.Table, After: after}:
		case <-ctx.Done():
			return ctx.Err()
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "snapshot scan failed")
	}

	w.logger.Info("snapshot complete", "table", w.cfg.Table, "rows", count)
	if w.offsets != nil {
		return w.offsets.MarkSnapshotDone(w.cfg.Table)
	}
	return nil
}
