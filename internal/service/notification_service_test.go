package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/realtime"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][]events.EventType
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	var decoded struct {
		Type events.EventType `json:"type"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages == nil {
		p.messages = map[string][]events.EventType{}
	}
	p.messages[channel] = append(p.messages[channel], decoded.Type)
	return p.err
}

func (p *recordingPublisher) received(channel string) []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages[channel]
}

func contains(types []events.EventType, want events.EventType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func TestNotificationServiceForwardsEvents(t *testing.T) {
	f := newFixture(t)
	publisher := &recordingPublisher{}
	NewNotificationService(f.dispatcher, publisher, nil, config.RealtimeConfig{Enabled: true, ChannelPrefix: "desk"}).RegisterHandlers()

	client, agent, ticket := f.assigned(t)

	chatTypes := publisher.received(realtime.ChatChannel("desk", ticket.Chat.ID))
	if !contains(chatTypes, events.EventChatOpened) {
		t.Errorf("chat channel got %v, want chat_opened", chatTypes)
	}
	for _, userID := range []string{client.UserID, agent.UserID} {
		got := publisher.received(realtime.UserChannel("desk", userID))
		if !contains(got, events.EventTicketAssigned) || !contains(got, events.EventChatOpened) {
			t.Errorf("user %s got %v, want ticket_assigned and chat_opened", userID, got)
		}
	}
	if got := publisher.received(realtime.UserChannel("desk", client.UserID)); !contains(got, events.EventTicketCreated) {
		t.Errorf("requester got %v, want ticket_created", got)
	}
}

func TestNotificationServiceDisabledOrFailing(t *testing.T) {
	f := newFixture(t)
	publisher := &recordingPublisher{}
	NewNotificationService(f.dispatcher, publisher, nil, config.RealtimeConfig{Enabled: false}).RegisterHandlers()
	f.openTicket(t, f.addClient(t), "quiet")
	if len(publisher.messages) != 0 {
		t.Errorf("disabled forwarder published %v", publisher.messages)
	}

	failing := newFixture(t)
	broken := &recordingPublisher{err: errors.New("redis down")}
	NewNotificationService(failing.dispatcher, broken, nil, config.RealtimeConfig{Enabled: true, ChannelPrefix: "desk"}).RegisterHandlers()
	// Publish failures are logged and never fail the operation.
	failing.openTicket(t, failing.addClient(t), "still created")
}
