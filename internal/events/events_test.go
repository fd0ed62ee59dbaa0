package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-requests/internal/domain"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestDispatcherRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	first := errors.New("first")
	d.Subscribe(EventRequestCreated, func(context.Context, Event) error {
		calls = append(calls, "a")
		return first
	})
	d.Subscribe(EventRequestCreated, func(context.Context, Event) error {
		calls = append(calls, "b")
		return nil
	})
	d.Subscribe(EventRequestRated, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventRequestCreated})
	assert.ErrorIs(t, err, first)
	assert.Equal(t, []string{"a", "b"}, calls)

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventSLABreached}))
}

func TestBridgeForwardsJSON(t *testing.T) {
	pub := &recordingPublisher{}
	bridge := NewBridge(pub, "", nil)
	d := NewInMemoryDispatcher()
	bridge.Attach(d)

	event := Event{
		ID:        "evt-1",
		Type:      EventRequestAssigned,
		RequestID: "CST-2026-0001",
		Actor:     domain.SystemActor("assignment"),
		Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Payload:   AssignedPayload{AgentID: "agent-1"},
	}
	require.NoError(t, d.Publish(context.Background(), event))

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "civic.requests.request_assigned", pub.subjects[0])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.Equal(t, "CST-2026-0001", decoded["request_id"])
	assert.Equal(t, "agent-1", decoded["payload"].(map[string]any)["agent_id"])
}

func TestBridgeSubjectPrefixAndErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("down")}
	bridge := NewBridge(pub, "city.ops.", nil)
	assert.Equal(t, "city.ops.sla_breached", bridge.Subject(EventSLABreached))

	err := bridge.Forward(context.Background(), Event{Type: EventSLABreached})
	assert.ErrorContains(t, err, "city.ops.sla_breached")
}
