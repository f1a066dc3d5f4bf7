package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rivo/tview"

	"agent_office/internal/domain"
)

type frame struct {
	Type domain.MessageType `json:"type"`
	Data json.RawMessage    `json:"data"`
}

// feed is the monitor's view of the office, rebuilt from the live channel.
type feed struct {
	mu       sync.Mutex
	limit    int
	personas []domain.PersonaView
	events   []domain.Event
	seen     map[string]struct{}
	masked   string
}

func newFeed(limit int) *feed {
	if limit <= 0 {
		limit = 200
	}
	return &feed{limit: limit, seen: make(map[string]struct{})}
}

// apply folds one server frame into the feed. Events already seen are
// dropped, which covers replays after a reconnect.
func (f *feed) apply(fr frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch fr.Type {
	case domain.MessageTypeInit:
		var p domain.InitPayload
		if err := json.Unmarshal(fr.Data, &p); err != nil {
			return fmt.Errorf("decode init: %w", err)
		}
		f.personas = p.Personas
		f.masked = p.MaskedToken
		f.events = f.events[:0]
		f.seen = make(map[string]struct{}, len(p.Activities))
		for _, ev := range p.Activities {
			f.appendLocked(ev)
		}
	case domain.MessageTypeNewActivity:
		var ev domain.Event
		if err := json.Unmarshal(fr.Data, &ev); err != nil {
			return fmt.Errorf("decode activity: %w", err)
		}
		if _, ok := f.seen[ev.ID]; ok {
			return nil
		}
		f.seen[ev.ID] = struct{}{}
		f.events = append([]domain.Event{ev}, f.events...)
		f.trimLocked()
	case domain.MessageTypeConfigUpdated:
		var p domain.ConfigUpdatedPayload
		if err := json.Unmarshal(fr.Data, &p); err != nil {
			return fmt.Errorf("decode config update: %w", err)
		}
		for i := range f.personas {
			if f.personas[i].ID == p.PersonaID {
				f.personas[i].Config = p.Config
			}
		}
	case domain.MessageTypeTokenUpdated:
		var p domain.TokenUpdatedPayload
		if err := json.Unmarshal(fr.Data, &p); err != nil {
			return fmt.Errorf("decode token update: %w", err)
		}
		f.masked = p.Masked
	default:
		return fmt.Errorf("unknown frame type %q", fr.Type)
	}
	return nil
}

func (f *feed) appendLocked(ev domain.Event) {
	if _, ok := f.seen[ev.ID]; ok {
		return
	}
	f.seen[ev.ID] = struct{}{}
	f.events = append(f.events, ev)
	f.trimLocked()
}

func (f *feed) trimLocked() {
	for len(f.events) > f.limit {
		dropped := f.events[len(f.events)-1]
		delete(f.seen, dropped.ID)
		f.events = f.events[:len(f.events)-1]
	}
}

type feedSnapshot struct {
	Personas []domain.PersonaView
	Events   []domain.Event
	Masked   string
}

func (f *feed) snapshot() feedSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return feedSnapshot{
		Personas: append([]domain.PersonaView(nil), f.personas...),
		Events:   append([]domain.Event(nil), f.events...),
		Masked:   f.masked,
	}
}

// filterEvents keeps only personaID's events. An empty id keeps everything.
func filterEvents(events []domain.Event, personaID string) []domain.Event {
	if personaID == "" {
		return events
	}
	out := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if ev.PersonaID == personaID {
			out = append(out, ev)
		}
	}
	return out
}

func renderEvents(events []domain.Event, now time.Time) string {
	if len(events) == 0 {
		return "Waiting for activity..."
	}
	var b strings.Builder
	for _, ev := range events {
		b.WriteString(fmt.Sprintf(
			"[%s]%-14s[-] %s  [gray]%s[-]\n  %s\n",
			categoryColor(ev.Category),
			string(ev.Category),
			tview.Escape(ev.PersonaName),
			humanize.RelTime(ev.Timestamp, now, "ago", "from now"),
			tview.Escape(ev.Content),
		))
	}
	return b.String()
}

func categoryColor(c domain.Category) string {
	switch c {
	case domain.CategoryCoordination:
		return "yellow"
	case domain.CategoryTest:
		return "aqua"
	default:
		return "green"
	}
}

func chatIDLabel(cfg domain.DeliveryConfig) string {
	if strings.TrimSpace(cfg.ChatID) == "" {
		return "not set"
	}
	return cfg.ChatID
}

func avatarLabel(cfg domain.DeliveryConfig) string {
	if strings.TrimSpace(cfg.AvatarURL) == "" {
		return "default"
	}
	return cfg.AvatarURL
}
