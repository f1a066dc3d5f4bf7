package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent_office/internal/domain"
)

func mustFrame(t *testing.T, typ domain.MessageType, data any) frame {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return frame{Type: typ, Data: raw}
}

func event(id string, at time.Time) domain.Event {
	return domain.Event{ID: id, PersonaID: "ross", PersonaName: "Ross Geller", Content: "c-" + id, Category: domain.CategoryUpdate, Timestamp: at}
}

func TestFeedAppliesInitAndDeduplicates(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := newFeed(3)

	require.NoError(t, f.apply(mustFrame(t, domain.MessageTypeInit, domain.InitPayload{
		Personas:    []domain.PersonaView{{Persona: domain.Persona{ID: "ross", Name: "Ross Geller"}, Status: domain.PersonaStatusActive}},
		Activities:  []domain.Event{event("2", now), event("1", now.Add(-time.Minute))},
		MaskedToken: "••••456789",
	})))

	require.NoError(t, f.apply(mustFrame(t, domain.MessageTypeNewActivity, event("3", now))))
	require.NoError(t, f.apply(mustFrame(t, domain.MessageTypeNewActivity, event("3", now))))
	require.NoError(t, f.apply(mustFrame(t, domain.MessageTypeNewActivity, event("4", now))))

	snap := f.snapshot()
	ids := make([]string, 0, len(snap.Events))
	for _, ev := range snap.Events {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"4", "3", "2"}, ids)
	assert.Equal(t, "••••456789", snap.Masked)

	// A reconnect replays the snapshot; nothing is duplicated.
	require.NoError(t, f.apply(mustFrame(t, domain.MessageTypeInit, domain.InitPayload{
		Activities: []domain.Event{event("4", now), event("3", now)},
	})))
	assert.Len(t, f.snapshot().Events, 2)
}

func TestFeedAppliesConfigAndToken(t *testing.T) {
	f := newFeed(10)
	require.NoError(t, f.apply(mustFrame(t, domain.MessageTypeInit, domain.InitPayload{
		Personas: []domain.PersonaView{{Persona: domain.Persona{ID: "pam"}}, {Persona: domain.Persona{ID: "kelly"}}},
	})))
	require.NoError(t, f.apply(mustFrame(t, domain.MessageTypeConfigUpdated, domain.ConfigUpdatedPayload{
		PersonaID: "kelly",
		Config:    domain.DeliveryConfig{ChatID: "55"},
	})))
	require.NoError(t, f.apply(mustFrame(t, domain.MessageTypeTokenUpdated, domain.TokenUpdatedPayload{Masked: "••••abcdef"})))

	snap := f.snapshot()
	assert.Equal(t, "", snap.Personas[0].Config.ChatID)
	assert.Equal(t, "55", snap.Personas[1].Config.ChatID)
	assert.Equal(t, "••••abcdef", snap.Masked)

	assert.Error(t, f.apply(frame{Type: "bogus", Data: json.RawMessage(`{}`)}))
	assert.Error(t, f.apply(frame{Type: domain.MessageTypeNewActivity, Data: json.RawMessage(`[`)}))
}

func TestRenderEvents(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "Waiting for activity...", renderEvents(nil, now))

	out := renderEvents([]domain.Event{event("1", now.Add(-3*time.Minute))}, now)
	assert.Contains(t, out, "Ross Geller")
	assert.Contains(t, out, "3 minutes ago")
	assert.Contains(t, out, "[green]")
}

func TestChatIDLabel(t *testing.T) {
	assert.Equal(t, "not set", chatIDLabel(domain.DeliveryConfig{}))
	assert.Equal(t, "-100", chatIDLabel(domain.DeliveryConfig{ChatID: "-100"}))
}

func TestFilterEventsBySelectedPersona(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pam := event("2", now)
	pam.PersonaID = "pam"
	events := []domain.Event{event("3", now), pam, event("1", now)}

	assert.Len(t, filterEvents(events, ""), 3)

	got := filterEvents(events, "ross")
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "1", got[1].ID)

	assert.Empty(t, filterEvents(events, "kelly"))
	assert.Equal(t, "Waiting for activity...", renderEvents(filterEvents(events, "kelly"), now))
}

func TestRenderEventsEscapesColorTags(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := event("1", now)
	ev.Content = "shipped [red]v2[-] today"

	out := renderEvents([]domain.Event{ev}, now)
	assert.Contains(t, out, "shipped [red[]v2[-[] today")
}

func TestAvatarLabel(t *testing.T) {
	assert.Equal(t, "default", avatarLabel(domain.DeliveryConfig{}))
	assert.Equal(t, "https://img/p.png", avatarLabel(domain.DeliveryConfig{AvatarURL: "https://img/p.png"}))
}

func TestFeedAppliesAvatarUpdate(t *testing.T) {
	f := newFeed(10)
	require.NoError(t, f.apply(mustFrame(t, domain.MessageTypeInit, domain.InitPayload{
		Personas: []domain.PersonaView{{Persona: domain.Persona{ID: "pam"}}},
	})))
	require.NoError(t, f.apply(mustFrame(t, domain.MessageTypeConfigUpdated, domain.ConfigUpdatedPayload{
		PersonaID: "pam",
		Config:    domain.DeliveryConfig{ChatID: "7", AvatarURL: "https://img/pam.png"},
	})))
	assert.Equal(t, "https://img/pam.png", f.snapshot().Personas[0].Config.AvatarURL)
}
