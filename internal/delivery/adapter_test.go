package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent_office/internal/domain"
	"agent_office/internal/roster"
	"agent_office/internal/telegram"
)

type sentMessage struct {
	token  string
	chatID string
	text   string
}

type recordingSender struct {
	mu    sync.Mutex
	calls []sentMessage
	err   error
}

func (s *recordingSender) SendMessage(_ context.Context, token, chatID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sentMessage{token: token, chatID: chatID, text: text})
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func sampleEvent(category domain.Category) domain.Event {
	return domain.Event{
		ID:          "1-1",
		PersonaID:   "ross",
		PersonaName: "Ross Geller",
		PersonaRole: "Engineer",
		Content:     "Built a prototype for onboarding flow.",
		Category:    category,
		Timestamp:   time.Now().UTC(),
		Channel:     domain.ChannelTelegram,
	}
}

func TestDeliverSkipsWithoutCredentialOrDestination(t *testing.T) {
	cases := []struct {
		name        string
		destination string
		credential  string
		wantErr     error
	}{
		{name: "no credential", destination: "42", credential: "", wantErr: domain.ErrTokenMissing},
		{name: "no destination", destination: "", credential: "tok", wantErr: domain.ErrDestinationMissing},
		{name: "neither", destination: "", credential: "", wantErr: domain.ErrTokenMissing},
		{name: "blank destination", destination: "   ", credential: "tok", wantErr: domain.ErrDestinationMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &recordingSender{}
			a := New(sender, roster.Default(), time.Second)

			res := a.Deliver(context.Background(), sampleEvent(domain.CategoryUpdate), tc.destination, tc.credential)
			assert.Equal(t, domain.DeliveryStatusSkipped, res.Status)
			assert.ErrorIs(t, res.Err, tc.wantErr)
			assert.Equal(t, 0, sender.count(), "no outbound call expected")
		})
	}
}

func TestDeliverSendsRenderedMessage(t *testing.T) {
	sender := &recordingSender{}
	a := New(sender, roster.Default(), time.Second)

	res := a.Deliver(context.Background(), sampleEvent(domain.CategoryCoordination), "-1001", "tok")
	require.Equal(t, domain.DeliveryStatusDelivered, res.Status)
	require.NoError(t, res.Err)
	require.Equal(t, 1, sender.count())

	got := sender.calls[0]
	assert.Equal(t, "tok", got.token)
	assert.Equal(t, "-1001", got.chatID)
	assert.Equal(t, "🔬 <b>Ross Geller</b>  ·  Engineer\n\nBuilt a prototype for onboarding flow.\n\n<i>🤝 Coordination</i>", got.text)
}

func TestDeliverFailureIsReportedNotRetried(t *testing.T) {
	apiErr := &telegram.APIError{Method: "sendMessage", StatusCode: 403, Description: "Forbidden: bot was blocked by the user"}
	sender := &recordingSender{err: apiErr}
	a := New(sender, roster.Default(), time.Second)

	res := a.Deliver(context.Background(), sampleEvent(domain.CategoryUpdate), "42", "tok")
	assert.Equal(t, domain.DeliveryStatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, domain.ErrDeliveryFailed)

	var got *telegram.APIError
	require.True(t, errors.As(res.Err, &got))
	assert.Equal(t, "Forbidden: bot was blocked by the user", got.Description)
	assert.Equal(t, 1, sender.count())
}

func TestRenderEscapesHTML(t *testing.T) {
	ev := sampleEvent(domain.CategoryUpdate)
	ev.Content = "a <b> & c"
	assert.Equal(t, "🤖 <b>Ross Geller</b>  ·  Engineer\n\na &lt;b&gt; &amp; c\n\n<i>📋 Update</i>", Render(ev, ""))
}

func TestTestEvent(t *testing.T) {
	p, ok := roster.Default().Lookup("pam")
	require.True(t, ok)

	ev := TestEvent(p, time.Unix(100, 0))
	assert.Equal(t, domain.CategoryTest, ev.Category)
	assert.Equal(t, TestMessage, ev.Content)
	assert.Contains(t, Render(ev, "🎨"), "<i>🧪 Test</i>")
}
