package domain

import (
	"time"
)

type Category string

const (
	CategoryUpdate       Category = "update"
	CategoryCoordination Category = "coordination"
	CategoryTest         Category = "test"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryUpdate, CategoryCoordination, CategoryTest:
		return true
	default:
		return false
	}
}

// ChannelTelegram marks every event as destined for the Telegram Bot API.
const ChannelTelegram = "telegram"

type PersonaStatus string

const (
	PersonaStatusActive PersonaStatus = "active"
)

type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusSkipped   DeliveryStatus = "skipped"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

type MessageType string

const (
	MessageTypeInit          MessageType = "init"
	MessageTypeNewActivity   MessageType = "new_activity"
	MessageTypeConfigUpdated MessageType = "config_updated"
	MessageTypeTokenUpdated  MessageType = "token_updated"

	MessageTypeUpdateConfig MessageType = "update_config"
	MessageTypeSetToken     MessageType = "set_token"
)

// Event is one generated activity record. Events are immutable once built.
type Event struct {
	ID          string    `json:"id"`
	PersonaID   string    `json:"botId"`
	PersonaName string    `json:"botName"`
	PersonaRole string    `json:"role"`
	Content     string    `json:"content"`
	Category    Category  `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
	Channel     string    `json:"channel"`
}

type Persona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Show        string `json:"show"`
	Role        string `json:"role"`
	Personality string `json:"personality"`
	Color       string `json:"color"`
	Avatar      string `json:"avatar"`
	Icon        string `json:"icon"`
}

type DeliveryConfig struct {
	ChatID    string `json:"telegramId,omitempty"`
	AvatarURL string `json:"dpUrl,omitempty"`
}

// DeliveryConfigPatch carries a partial update; nil fields are left untouched.
type DeliveryConfigPatch struct {
	ChatID    *string `json:"telegramId,omitempty"`
	AvatarURL *string `json:"dpUrl,omitempty"`
}

func (c DeliveryConfig) Apply(p DeliveryConfigPatch) DeliveryConfig {
	if p.ChatID != nil {
		c.ChatID = *p.ChatID
	}
	if p.AvatarURL != nil {
		c.AvatarURL = *p.AvatarURL
	}
	return c
}

type PersonaView struct {
	Persona
	Status PersonaStatus  `json:"status"`
	Config DeliveryConfig `json:"config"`
}

// Envelope is the wire frame for every server -> client message.
type Envelope struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

type InitPayload struct {
	Personas    []PersonaView `json:"bots"`
	Activities  []Event       `json:"activities"`
	MaskedToken string        `json:"telegramBotToken"`
}

type ConfigUpdatedPayload struct {
	PersonaID string         `json:"botId"`
	Config    DeliveryConfig `json:"config"`
}

type TokenUpdatedPayload struct {
	Masked string `json:"masked"`
}

// ClientMessage is the union of client -> server messages.
type ClientMessage struct {
	Type      MessageType         `json:"type"`
	PersonaID string              `json:"botId,omitempty"`
	Config    DeliveryConfigPatch `json:"config"`
	Token     string              `json:"token,omitempty"`
}

type DeliveryRecord struct {
	ID          string         `json:"id"`
	EventID     string         `json:"event_id"`
	PersonaID   string         `json:"persona_id"`
	Category    Category       `json:"category"`
	Destination string         `json:"destination"`
	Status      DeliveryStatus `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type Stats struct {
	TotalMessages  int                    `json:"totalMessages"`
	Last24h        int                    `json:"last24h"`
	ActiveBots     int                    `json:"activeBots"`
	TotalBots      int                    `json:"totalBots"`
	UptimeSeconds  float64                `json:"uptime"`
	Subscribers    int                    `json:"subscribers"`
	DeliveryCounts map[DeliveryStatus]int `json:"deliveries,omitempty"`
}
