// Package office owns the running simulation: the activity store, the
// delivery settings, the subscriber registry and the delivery pipeline.
// Every mutation that is broadcast goes through the emit lock, so a new
// subscriber's snapshot and the live stream never overlap or leave a gap.
package office

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent_office/internal/activity"
	"agent_office/internal/clock"
	"agent_office/internal/delivery"
	"agent_office/internal/domain"
	"agent_office/internal/messaging/inproc"
	"agent_office/internal/roster"
	"agent_office/internal/settings"
)

type Deliverer interface {
	Deliver(ctx context.Context, ev domain.Event, destination, credential string) delivery.Result
}

type Journal interface {
	RecordDelivery(ctx context.Context, rec domain.DeliveryRecord) error
	ListDeliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)
	CountDeliveriesByStatus(ctx context.Context) (map[domain.DeliveryStatus]int, error)
}

type Config struct {
	StoreCapacity    int
	SnapshotSize     int
	SubscriberBuffer int
	Token            string
	DeliveryConfigs  map[string]domain.DeliveryConfig
}

func (c Config) withDefaults() Config {
	if c.StoreCapacity <= 0 {
		c.StoreCapacity = activity.DefaultCapacity
	}
	if c.SnapshotSize <= 0 {
		c.SnapshotSize = 50
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 64
	}
	return c
}

type Service struct {
	roster    roster.Roster
	store     *activity.Store
	settings  *settings.Settings
	registry  *inproc.Registry
	deliverer Deliverer
	journal   Journal
	clk       clock.Clock
	cfg       Config
	logger    *log.Logger
	started   time.Time

	emitMu sync.Mutex
	wg     sync.WaitGroup
}

// New builds a service. journal may be nil, in which case delivery outcomes
// are only logged.
func New(r roster.Roster, deliverer Deliverer, journal Journal, clk clock.Clock, cfg Config, logger *log.Logger) *Service {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = log.Default()
	}
	st := settings.New()
	st.SetToken(cfg.Token)
	for id, dc := range cfg.DeliveryConfigs {
		if _, ok := r.Lookup(id); !ok {
			logger.Printf("ignoring delivery config for unknown persona=%s", id)
			continue
		}
		chat, avatar := dc.ChatID, dc.AvatarURL
		st.UpdateDeliveryConfig(id, domain.DeliveryConfigPatch{ChatID: &chat, AvatarURL: &avatar})
	}
	return &Service{
		roster:    r,
		store:     activity.NewStore(cfg.StoreCapacity),
		settings:  st,
		registry:  inproc.New(cfg.SubscriberBuffer, logger),
		deliverer: deliverer,
		journal:   journal,
		clk:       clk,
		cfg:       cfg,
		logger:    logger,
		started:   clk.Now(),
	}
}

// Publish stores ev, broadcasts it and dispatches delivery without waiting
// for it.
func (s *Service) Publish(ctx context.Context, ev domain.Event) {
	s.emitMu.Lock()
	s.store.Append(ev)
	s.registry.Broadcast(domain.Envelope{Type: domain.MessageTypeNewActivity, Data: ev})
	s.emitMu.Unlock()

	token, destination := s.settings.Resolve(ev.PersonaID)
	dctx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := s.deliverer.Deliver(dctx, ev, destination, token)
		// Most personas are unconfigured; only real attempts are journaled.
		if res.Status == domain.DeliveryStatusSkipped {
			return
		}
		s.record(dctx, res)
	}()
}

// Seed stores ev without broadcasting or delivering it.
func (s *Service) Seed(ev domain.Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.store.Append(ev)
}

// Subscribe registers a live subscriber whose queue starts with the init
// snapshot.
func (s *Service) Subscribe(id string) (<-chan domain.Envelope, error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	ch, err := s.registry.Register(id, domain.Envelope{Type: domain.MessageTypeInit, Data: s.snapshot()})
	if err != nil {
		return nil, fmt.Errorf("register subscriber %s: %w", id, err)
	}
	return ch, nil
}

func (s *Service) Unsubscribe(id string) {
	s.registry.Unregister(id)
}

func (s *Service) Snapshot() domain.InitPayload {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	return s.snapshot()
}

func (s *Service) snapshot() domain.InitPayload {
	return domain.InitPayload{
		Personas:    s.Personas(),
		Activities:  s.store.Recent(s.cfg.SnapshotSize),
		MaskedToken: s.settings.MaskedToken(),
	}
}

func (s *Service) Personas() []domain.PersonaView {
	personas := s.roster.Personas()
	out := make([]domain.PersonaView, 0, len(personas))
	for _, p := range personas {
		out = append(out, s.view(p))
	}
	return out
}

func (s *Service) Persona(id string) (domain.PersonaView, error) {
	p, ok := s.roster.Lookup(id)
	if !ok {
		return domain.PersonaView{}, fmt.Errorf("%w: %s", domain.ErrPersonaNotFound, id)
	}
	return s.view(p), nil
}

func (s *Service) view(p domain.Persona) domain.PersonaView {
	return domain.PersonaView{
		Persona: p,
		Status:  domain.PersonaStatusActive,
		Config:  s.settings.DeliveryConfig(p.ID),
	}
}

// Activities returns up to limit events, newest first. limit <= 0 returns
// the whole store.
func (s *Service) Activities(limit int) []domain.Event {
	return s.store.Recent(limit)
}

func (s *Service) UpdateDeliveryConfig(personaID string, patch domain.DeliveryConfigPatch) (domain.DeliveryConfig, error) {
	if _, ok := s.roster.Lookup(personaID); !ok {
		return domain.DeliveryConfig{}, fmt.Errorf("%w: %s", domain.ErrPersonaNotFound, personaID)
	}

	s.emitMu.Lock()
	next := s.settings.UpdateDeliveryConfig(personaID, patch)
	s.registry.Broadcast(domain.Envelope{
		Type: domain.MessageTypeConfigUpdated,
		Data: domain.ConfigUpdatedPayload{PersonaID: personaID, Config: next},
	})
	s.emitMu.Unlock()

	s.logger.Printf("delivery config updated persona=%s chat_id_set=%t", personaID, next.ChatID != "")
	return next, nil
}

// SetToken replaces the shared bot token and returns its masked form. An
// empty token clears it.
func (s *Service) SetToken(token string) string {
	token = strings.TrimSpace(token)

	s.emitMu.Lock()
	masked := s.settings.SetToken(token)
	s.registry.Broadcast(domain.Envelope{
		Type: domain.MessageTypeTokenUpdated,
		Data: domain.TokenUpdatedPayload{Masked: masked},
	})
	s.emitMu.Unlock()

	if masked == "" {
		s.logger.Printf("telegram token cleared")
	} else {
		s.logger.Printf("telegram token set masked=%s", masked)
	}
	return masked
}

func (s *Service) MaskedToken() string {
	return s.settings.MaskedToken()
}

// HandleClientMessage applies one inbound control message. Anything that
// does not parse, or has an unknown type, yields ErrMalformedMessage.
func (s *Service) HandleClientMessage(raw []byte) error {
	var msg domain.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	switch msg.Type {
	case domain.MessageTypeUpdateConfig:
		if msg.PersonaID == "" {
			return fmt.Errorf("%w: update_config without botId", domain.ErrMalformedMessage)
		}
		_, err := s.UpdateDeliveryConfig(msg.PersonaID, msg.Config)
		return err
	case domain.MessageTypeSetToken:
		s.SetToken(msg.Token)
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", domain.ErrMalformedMessage, msg.Type)
	}
}

// TestDelivery sends the fixed test message for one persona and waits for
// the outcome. Missing configuration is reported without any outbound call.
func (s *Service) TestDelivery(ctx context.Context, personaID string) error {
	p, ok := s.roster.Lookup(personaID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPersonaNotFound, personaID)
	}
	token, destination := s.settings.Resolve(personaID)
	res := s.deliverer.Deliver(ctx, delivery.TestEvent(p, s.clk.Now()), destination, token)
	s.record(ctx, res)
	if res.Status == domain.DeliveryStatusDelivered {
		return nil
	}
	return res.Err
}

func (s *Service) record(ctx context.Context, res delivery.Result) {
	switch res.Status {
	case domain.DeliveryStatusFailed:
		s.logger.Printf("delivery failed persona=%s event=%s: %v", res.PersonaID, res.EventID, res.Err)
	case domain.DeliveryStatusDelivered:
		s.logger.Printf("delivery ok persona=%s event=%s", res.PersonaID, res.EventID)
	}
	if s.journal == nil {
		return
	}
	rec := domain.DeliveryRecord{
		ID:          uuid.NewString(),
		EventID:     res.EventID,
		PersonaID:   res.PersonaID,
		Category:    res.Category,
		Destination: res.Destination,
		Status:      res.Status,
		Reason:      res.Reason(),
		CreatedAt:   s.clk.Now(),
	}
	if err := s.journal.RecordDelivery(ctx, rec); err != nil {
		s.logger.Printf("record delivery failed event=%s: %v", res.EventID, err)
	}
}

func (s *Service) Deliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	if s.journal == nil {
		return []domain.DeliveryRecord{}, nil
	}
	return s.journal.ListDeliveries(ctx, limit)
}

func (s *Service) Stats(ctx context.Context) domain.Stats {
	now := s.clk.Now()
	total := len(s.roster.Entries)
	stats := domain.Stats{
		TotalMessages: s.store.Len(),
		Last24h:       s.store.CountSince(now.Add(-24 * time.Hour)),
		ActiveBots:    total,
		TotalBots:     total,
		UptimeSeconds: now.Sub(s.started).Seconds(),
		Subscribers:   s.registry.Count(),
	}
	if s.journal != nil {
		counts, err := s.journal.CountDeliveriesByStatus(ctx)
		if err != nil {
			s.logger.Printf("count deliveries failed: %v", err)
		} else {
			stats.DeliveryCounts = counts
		}
	}
	return stats
}

// Wait blocks until every dispatched delivery has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
