// Package outbox implements the transactional outbox pattern for the
// relevance estimation service.
//
// State changes and the events announcing them must not diverge: an event is
// first recorded as a row in the outbox_events table, then published to
// Kafka by a background processor. A crash between the state change and the
// publish leaves the event row behind, and the processor picks it up on the
// next poll.
//
// # Components
//
//   - Emitter: builds job lifecycle events (job.created, job.finalized) and
//     records them through a Repository
//   - PgRepository: Postgres-backed event storage
//   - KafkaPublisher: writes events to a Kafka topic via segmentio/kafka-go
//   - Processor: polls pending events on an interval and publishes them,
//     guarded by a Postgres advisory lock so only one instance drains
//
// # Delivery Semantics
//
// Delivery is at-least-once. An event whose publish succeeded but whose
// published_at update failed is re-published on the next poll; consumers
// must deduplicate on the event id. Events that exhaust their publish
// attempts are parked and excluded from further polls.
package outbox
