package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent_office/internal/domain"
)

func TestWSURL(t *testing.T) {
	got, err := newClient("http://localhost:8080/").wsURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", got)

	got, err = newClient("https://office.example.com/base").wsURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://office.example.com/base/ws", got)
}

func TestTestDeliverySurfacesServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/telegram/test/ross", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"set a Chat ID for this bot first"}`))
	}))
	defer ts.Close()

	err := newClient(ts.URL).testDelivery("ross")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set a Chat ID for this bot first")
}

func TestStreamReceivesFramesAndSends(t *testing.T) {
	received := make(chan domain.ClientMessage, 1)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(domain.Envelope{Type: domain.MessageTypeTokenUpdated, Data: domain.TokenUpdatedPayload{Masked: "••••123456"}})
		var msg domain.ClientMessage
		if err := conn.ReadJSON(&msg); err == nil {
			received <- msg
		}
	}))
	defer ts.Close()

	c := newClient(ts.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan frame, 1)
	go c.stream(ctx, 50*time.Millisecond, func(fr frame) {
		select {
		case frames <- fr:
		default:
		}
	}, func(bool, error) {})

	select {
	case fr := <-frames:
		assert.Equal(t, domain.MessageTypeTokenUpdated, fr.Type)
		assert.True(t, strings.Contains(string(fr.Data), "123456"))
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	require.Eventually(t, func() bool { return c.setToken("tok") == nil }, time.Second, 10*time.Millisecond)
	select {
	case msg := <-received:
		assert.Equal(t, domain.MessageTypeSetToken, msg.Type)
		assert.Equal(t, "tok", msg.Token)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive set_token")
	}
}

func TestSendWithoutConnection(t *testing.T) {
	assert.ErrorIs(t, newClient("http://localhost:1").setChatID("ross", "1"), errNotConnected)
}

func TestSetAvatarURLSendsPartialConfig(t *testing.T) {
	received := make(chan []byte, 1)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, raw, err := conn.ReadMessage()
		if err == nil {
			received <- raw
		}
	}))
	defer ts.Close()

	c := newClient(ts.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.stream(ctx, 50*time.Millisecond, func(frame) {}, func(bool, error) {})

	require.Eventually(t, func() bool { return c.setAvatarURL("pam", "https://img/pam.png") == nil }, time.Second, 10*time.Millisecond)
	select {
	case raw := <-received:
		var msg domain.ClientMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, domain.MessageTypeUpdateConfig, msg.Type)
		assert.Equal(t, "pam", msg.PersonaID)
		require.NotNil(t, msg.Config.AvatarURL)
		assert.Equal(t, "https://img/pam.png", *msg.Config.AvatarURL)
		assert.Nil(t, msg.Config.ChatID)
		assert.NotContains(t, string(raw), "telegramId")
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive update_config")
	}
}

func TestRunAsyncDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	reports := make(chan string, 1)

	returned := make(chan struct{})
	go func() {
		runAsync(func() error {
			<-release
			return nil
		}, func(msg string) { reports <- msg }, "saved", "failed: ")
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("runAsync waited for the operation")
	}

	close(release)
	select {
	case msg := <-reports:
		assert.Equal(t, "saved", msg)
	case <-time.After(time.Second):
		t.Fatal("no outcome reported")
	}

	runAsync(func() error { return errNotConnected }, func(msg string) { reports <- msg }, "saved", "failed: ")
	select {
	case msg := <-reports:
		assert.Equal(t, "failed: "+errNotConnected.Error(), msg)
	case <-time.After(time.Second):
		t.Fatal("no failure reported")
	}
}
