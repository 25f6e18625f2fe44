// Package models defines the core data structures for the Prim backend.
//
// It includes the persisted User and Message records, the canonical inbound
// webhook shapes, and the persona descriptor returned to the voice platform.
// These types are shared across modules.
package models

import (
	"time"
)

// Channel identifies the medium a message was exchanged on.
type Channel string

const (
	// ChannelWhatsApp marks a text turn exchanged over WhatsApp.
	ChannelWhatsApp Channel = "whatsapp"
	// ChannelVoice marks a transcribed turn from a phone call.
	ChannelVoice Channel = "voice"
)

// Sender identifies who authored a message turn.
type Sender string

const (
	// SenderUser marks a turn authored by the user.
	SenderUser Sender = "user"
	// SenderAssistant marks a turn authored by the assistant.
	SenderAssistant Sender = "assistant"
)

// IsValidChannel checks if the given channel is supported.
func IsValidChannel(c Channel) bool {
	switch c {
	case ChannelWhatsApp, ChannelVoice:
		return true
	default:
		return false
	}
}

// User represents a person Prim talks to, keyed by their canonical WhatsApp phone.
//
// Phone holds the normalized chat-channel number and is unique across users.
// CallPhone is the number used for outbound voice calls; it may differ from
// Phone because the chat and voice channels use different addressing.
type User struct {
	ID              string    `bson:"_id,omitempty" json:"id"`
	Phone           string    `bson:"phone" json:"phone"`
	CallPhone       string    `bson:"call_phone,omitempty" json:"call_phone,omitempty"`
	Name            string    `bson:"name,omitempty" json:"name,omitempty"`
	Email           string    `bson:"email,omitempty" json:"email,omitempty"`
	IsYC            bool      `bson:"is_yc" json:"is_yc"`
	Onboarded       bool      `bson:"onboarded" json:"onboarded"`
	VapiAssistantID string    `bson:"vapi_assistant_id,omitempty" json:"vapi_assistant_id,omitempty"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
}

// UserUpdate represents a partial update of a user's mutable fields.
// Nil fields are left untouched.
type UserUpdate struct {
	Name            *string `bson:"name,omitempty" json:"name,omitempty"`
	Email           *string `bson:"email,omitempty" json:"email,omitempty"`
	CallPhone       *string `bson:"call_phone,omitempty" json:"call_phone,omitempty"`
	IsYC            *bool   `bson:"is_yc,omitempty" json:"is_yc,omitempty"`
	Onboarded       *bool   `bson:"onboarded,omitempty" json:"onboarded,omitempty"`
	VapiAssistantID *string `bson:"vapi_assistant_id,omitempty" json:"vapi_assistant_id,omitempty"`
}

// IsEmpty reports whether the update carries no field changes.
func (u UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.CallPhone == nil &&
		u.IsYC == nil && u.Onboarded == nil && u.VapiAssistantID == nil
}

// Message is one turn of a conversation. Messages are append-only: created
// once, never mutated, never deleted.
type Message struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Text      string    `bson:"text" json:"text"`
	Channel   Channel   `bson:"source" json:"source"`
	Sender    Sender    `bson:"sender,omitempty" json:"sender,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// InboundTurn is the canonical shape every chat-channel webhook adapter
// produces before any business logic runs.
type InboundTurn struct {
	From        string    // raw sender address as delivered by the provider
	Body        string    // message text
	ProfileName string    // display name reported by the provider, may be empty
	Channel     Channel   // originating channel
	ReceivedAt  time.Time // server receive time
}

// LeadSubmission is the canonical shape of a lead-capture form submission.
type LeadSubmission struct {
	Email string
	Phone string
	Name  string
}

// EndOfCallReport carries what the voice platform tells us when a call finishes.
type EndOfCallReport struct {
	CallID         string
	CustomerNumber string
	Transcript     string
	EndedReason    string
	StartedAt      string
	EndedAt        string
}

// AssistantConfig is the persona descriptor handed back to the voice platform
// when it asks how to run a live call.
type AssistantConfig struct {
	FirstMessage string               `json:"firstMessage"`
	Model        AssistantModel       `json:"model"`
	Voice        AssistantVoiceConfig `json:"voice"`
	ServerURL    string               `json:"serverUrl,omitempty"`
}

// AssistantModel selects the LLM backing an assistant persona.
type AssistantModel struct {
	Provider      string             `json:"provider"`
	Model         string             `json:"model"`
	SystemMessage []AssistantMessage `json:"messages"`
}

// AssistantMessage is one role-tagged prompt line in a persona descriptor.
type AssistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AssistantVoiceConfig selects the synthesized voice for a persona.
type AssistantVoiceConfig struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}
