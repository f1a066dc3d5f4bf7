// Package delivery forwards events to the chat-delivery API on a best-effort,
// at-most-once basis.
package delivery

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"agent_office/internal/domain"
)

const (
	TestMessage = "✅ Test message — Telegram delivery is working!"

	defaultTimeout = 15 * time.Second
)

type Sender interface {
	SendMessage(ctx context.Context, token, chatID, text string) error
}

type IconLookup interface {
	Icon(personaID string) string
}

type Result struct {
	Status      domain.DeliveryStatus
	EventID     string
	PersonaID   string
	Category    domain.Category
	Destination string
	Err         error
}

func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type Adapter struct {
	sender  Sender
	icons   IconLookup
	timeout time.Duration
}

func New(sender Sender, icons IconLookup, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Adapter{sender: sender, icons: icons, timeout: timeout}
}

// Deliver sends ev to destination. A missing credential or destination is a
// skip, not an error; any sender error is reported as a failed result and
// never retried.
func (a *Adapter) Deliver(ctx context.Context, ev domain.Event, destination, credential string) Result {
	res := Result{
		EventID:     ev.ID,
		PersonaID:   ev.PersonaID,
		Category:    ev.Category,
		Destination: destination,
	}
	if strings.TrimSpace(credential) == "" {
		res.Status = domain.DeliveryStatusSkipped
		res.Err = domain.ErrTokenMissing
		return res
	}
	if strings.TrimSpace(destination) == "" {
		res.Status = domain.DeliveryStatusSkipped
		res.Err = domain.ErrDestinationMissing
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	icon := ""
	if a.icons != nil {
		icon = a.icons.Icon(ev.PersonaID)
	}
	if err := a.sender.SendMessage(ctx, credential, destination, Render(ev, icon)); err != nil {
		res.Status = domain.DeliveryStatusFailed
		res.Err = fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
		return res
	}
	res.Status = domain.DeliveryStatusDelivered
	return res
}

// Render formats ev as the Telegram HTML message body.
func Render(ev domain.Event, icon string) string {
	if icon == "" {
		icon = "🤖"
	}
	return fmt.Sprintf(
		"%s <b>%s</b>  ·  %s\n\n%s\n\n<i>%s</i>",
		icon,
		html.EscapeString(ev.PersonaName),
		html.EscapeString(ev.PersonaRole),
		html.EscapeString(ev.Content),
		tag(ev.Category),
	)
}

func tag(c domain.Category) string {
	switch c {
	case domain.CategoryTest:
		return "🧪 Test"
	case domain.CategoryCoordination:
		return "🤝 Coordination"
	default:
		return "📋 Update"
	}
}

// TestEvent builds the fixed test message for a persona.
func TestEvent(p domain.Persona, at time.Time) domain.Event {
	return domain.Event{
		ID:          fmt.Sprintf("test-%d", at.UnixMilli()),
		PersonaID:   p.ID,
		PersonaName: p.Name,
		PersonaRole: p.Role,
		Content:     TestMessage,
		Category:    domain.CategoryTest,
		Timestamp:   at.UTC(),
		Channel:     domain.ChannelTelegram,
	}
}
