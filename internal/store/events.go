package store

import (
	"context"
	"time"
)

// DomainEventRecord is one row of the optional audit stream (spec §4
// "DomainEvent"), in the style of the teacher's eventbus.Event but without
// the NATS publish step -- zjj is single-host, so the bus (internal/events)
// only fans out in-process subscribers. Rows are written only through
// AppendDomainEvent; no component in this repository calls it, and the bus
// does not write here.
type DomainEventRecord struct {
	ID          int64
	EventType   string
	AggregateID string
	OccurredAt  time.Time
	Payload     string // JSON
}

// AppendDomainEvent inserts one event row.
func (s *Store) AppendDomainEvent(ctx context.Context, eventType, aggregateID, payloadJSON string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domain_events (event_type, aggregate_id, occurred_at, payload) VALUES (?, ?, ?, ?)
	`, eventType, aggregateID, formatTime(now), payloadJSON)
	return wrapDBErrorf(err, "append domain event %q for %s", eventType, aggregateID)
}

// ListDomainEventsForAggregate returns events for one aggregate in occurrence order.
func (s *Store) ListDomainEventsForAggregate(ctx context.Context, aggregateID string) ([]DomainEventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, aggregate_id, occurred_at, payload
		FROM domain_events WHERE aggregate_id = ? ORDER BY occurred_at ASC, id ASC
	`, aggregateID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list domain events for %s", aggregateID)
	}
	defer func() { _ = rows.Close() }()

	var out []DomainEventRecord
	for rows.Next() {
		var rec DomainEventRecord
		var ts string
		if err := rows.Scan(&rec.ID, &rec.EventType, &rec.AggregateID, &ts, &rec.Payload); err != nil {
			return nil, wrapDBError("scan domain event row", err)
		}
		if rec.OccurredAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, wrapDBError("iterate domain events", rows.Err())
}
