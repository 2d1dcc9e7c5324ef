package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/iepathos/prodigy/internal/idgen"
)

// EventType is one of the orchestrator's observable state changes,
// per spec §4.K's Observability section.
type EventType string

const (
	EventAgentStarted      EventType = "agent_started"
	EventCommandStarted    EventType = "command_started"
	EventCommandCompleted  EventType = "command_completed"
	EventAgentCompleted    EventType = "agent_completed"
	EventTimeoutOccurred   EventType = "timeout_occurred"
	EventTimeoutResolved   EventType = "timeout_resolved"
	EventCheckpointCreated EventType = "checkpoint_created"
	EventPhaseTransitioned EventType = "phase_transitioned"
)

// Event is one emission on the job's event stream, durable under
// events/{job_id}/{ts_ns:020}_{uuid} per spec §6.
type Event struct {
	JobID     string      `json:"job_id"`
	Seq       int64       `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	AgentID   string      `json:"agent_id,omitempty"`
	ItemID    string      `json:"item_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Publisher is an observer of the orchestrator's event stream.
// Observers subscribe without affecting control flow; a slow observer
// must not block the scheduler, so every Publish call is expected to
// be non-blocking or to apply its own internal buffering/timeout.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus fans emitted events out to every registered Publisher and
// assigns the monotonic per-job sequence number.
type Bus struct {
	jobID      string
	seq        int64
	publishers []Publisher
}

// NewBus constructs a Bus for jobID that publishes to every observer
// in publishers, in order.
func NewBus(jobID string, publishers ...Publisher) *Bus {
	return &Bus{jobID: jobID, publishers: publishers}
}

func (b *Bus) emit(ctx context.Context, t EventType, agentID, itemID string, data interface{}) {
	event := Event{
		JobID:     b.jobID,
		Seq:       atomic.AddInt64(&b.seq, 1),
		Timestamp: time.Now(),
		Type:      t,
		AgentID:   agentID,
		ItemID:    itemID,
		Data:      data,
	}
	for _, p := range b.publishers {
		_ = p.Publish(ctx, event)
	}
}

func (b *Bus) AgentStarted(ctx context.Context, agentID, itemID string) {
	b.emit(ctx, EventAgentStarted, agentID, itemID, nil)
}

func (b *Bus) CommandStarted(ctx context.Context, agentID, itemID, stepID string) {
	b.emit(ctx, EventCommandStarted, agentID, itemID, map[string]string{"step_id": stepID})
}

func (b *Bus) CommandCompleted(ctx context.Context, agentID, itemID, stepID string, success bool) {
	b.emit(ctx, EventCommandCompleted, agentID, itemID, map[string]interface{}{"step_id": stepID, "success": success})
}

func (b *Bus) AgentCompleted(ctx context.Context, agentID, itemID string, outcome OutcomeKind) {
	b.emit(ctx, EventAgentCompleted, agentID, itemID, map[string]string{"outcome": string(outcome)})
}

func (b *Bus) TimeoutOccurred(ctx context.Context, agentID, itemID, scope string) {
	b.emit(ctx, EventTimeoutOccurred, agentID, itemID, map[string]string{"scope": scope})
}

func (b *Bus) TimeoutResolved(ctx context.Context, agentID, itemID, action string) {
	b.emit(ctx, EventTimeoutResolved, agentID, itemID, map[string]string{"action": action})
}

func (b *Bus) CheckpointCreated(ctx context.Context, checkpointID, reason string) {
	b.emit(ctx, EventCheckpointCreated, "", "", map[string]string{"checkpoint_id": checkpointID, "reason": reason})
}

func (b *Bus) PhaseTransitioned(ctx context.Context, from, to string) {
	b.emit(ctx, EventPhaseTransitioned, "", "", map[string]string{"from": from, "to": to})
}

// StoragePublisher durably appends every event to the storage backend
// under events/{job_id}/{ts_ns:020}_{uuid}, per spec §6's durable
// layout.
type StoragePublisher struct {
	put func(ctx context.Context, key string, data []byte) error
}

// NewStoragePublisher wraps a storage.Backend's Put method so this
// package does not need to import storage directly for the one method
// it uses.
func NewStoragePublisher(put func(ctx context.Context, key string, data []byte) error) *StoragePublisher {
	return &StoragePublisher{put: put}
}

func (s *StoragePublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("events/%s/%020d_%s", event.JobID, event.Timestamp.UnixNano(), idgen.ULID())
	return s.put(ctx, key, data)
}

// ChannelPublisher fans events out to an in-memory channel for a
// progress UI or test assertions, dropping events if the channel is
// full rather than blocking the scheduler.
type ChannelPublisher struct {
	ch chan Event
}

func NewChannelPublisher(buffer int) *ChannelPublisher {
	return &ChannelPublisher{ch: make(chan Event, buffer)}
}

func (c *ChannelPublisher) Publish(_ context.Context, event Event) error {
	select {
	case c.ch <- event:
	default:
	}
	return nil
}

func (c *ChannelPublisher) Events() <-chan Event { return c.ch }
