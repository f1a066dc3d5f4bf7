package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agent_office/internal/domain"
)

var errNotConnected = errors.New("live channel not connected")

type client struct {
	baseURL string
	http    *http.Client

	mu   sync.Mutex
	conn *websocket.Conn
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (c *client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse addr: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// stream keeps the live channel open, reconnecting after retry whenever it
// drops, until ctx is done.
func (c *client) stream(ctx context.Context, retry time.Duration, onFrame func(frame), onState func(connected bool, err error)) {
	for {
		err := c.streamOnce(ctx, onFrame, onState)
		if ctx.Err() != nil {
			return
		}
		onState(false, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

func (c *client) streamOnce(ctx context.Context, onFrame func(frame), onState func(bool, error)) error {
	target, err := c.wsURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	onState(true, nil)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var fr frame
		if err := conn.ReadJSON(&fr); err != nil {
			return err
		}
		onFrame(fr)
	}
}

func (c *client) send(msg domain.ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *client) setToken(token string) error {
	return c.send(domain.ClientMessage{Type: domain.MessageTypeSetToken, Token: token})
}

func (c *client) setChatID(personaID, chatID string) error {
	return c.updateConfig(personaID, domain.DeliveryConfigPatch{ChatID: &chatID})
}

func (c *client) setAvatarURL(personaID, avatarURL string) error {
	return c.updateConfig(personaID, domain.DeliveryConfigPatch{AvatarURL: &avatarURL})
}

func (c *client) updateConfig(personaID string, patch domain.DeliveryConfigPatch) error {
	return c.send(domain.ClientMessage{
		Type:      domain.MessageTypeUpdateConfig,
		PersonaID: personaID,
		Config:    patch,
	})
}

// runAsync runs op off the UI goroutine and reports its outcome. An empty
// okMsg reports nothing on success.
func runAsync(op func() error, report func(string), okMsg, failPrefix string) {
	go func() {
		if err := op(); err != nil {
			report(failPrefix + err.Error())
			return
		}
		if okMsg != "" {
			report(okMsg)
		}
	}()
}

func (c *client) testDelivery(personaID string) error {
	return c.postJSON("/api/telegram/test/"+url.PathEscape(personaID), nil, nil)
}

func (c *client) stats() (domain.Stats, error) {
	var out domain.Stats
	if err := c.getJSON("/api/stats", &out); err != nil {
		return domain.Stats{}, err
	}
	return out, nil
}

func (c *client) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return apiError(resp, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return err
	}
	return nil
}

func (c *client) postJSON(path string, in any, out any) error {
	var payload io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return apiError(resp, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return err
	}
	return nil
}

// apiError prefers the server's {"error": ...} message over the raw body.
func apiError(resp *http.Response, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("http %s: %s", resp.Status, payload.Error)
	}
	return fmt.Errorf("http %s: %s", resp.Status, strings.TrimSpace(string(body)))
}
