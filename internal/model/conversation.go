package model

import (
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation is a direct-message thread between exactly two users.
type Conversation struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	PairKey      string             `json:"-" bson:"pair_key,omitempty"`
	Participants []Participant      `json:"participants" bson:"participants"`
	Messages     []Message          `json:"messages" bson:"messages"`
	CreatedAt    time.Time          `json:"createdAt" bson:"created_at"`
	LastUpdated  time.Time          `json:"lastUpdated" bson:"last_updated"`
}

// Participant holds per-user metadata and the read flag for that user.
type Participant struct {
	Email string `json:"email" bson:"email"`
	Name  string `json:"name" bson:"name"`
	Read  bool   `json:"read" bson:"read"`
}

// ConversationSummary is the listing view of a conversation for one participant.
type ConversationSummary struct {
	ID            primitive.ObjectID `json:"id"`
	Participants  []Participant      `json:"participants"`
	LastMessage   *Message           `json:"lastMessage,omitempty"`
	LastMessageAt time.Time          `json:"lastMessageAt"`
	Unread        bool               `json:"unread"`
}

// NormalizeIdentity trims and lower-cases an email identity.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// PairKey returns the order-independent key for two identities.
func PairKey(a, b string) string {
	pair := []string{NormalizeIdentity(a), NormalizeIdentity(b)}
	sort.Strings(pair)
	return pair[0] + "|" + pair[1]
}

// NewConversation builds an unsaved conversation. Both participants start as read.
func NewConversation(a, b Participant, now time.Time) *Conversation {
	a.Read, b.Read = true, true
	return &Conversation{
		PairKey:      PairKey(a.Email, b.Email),
		Participants: []Participant{a, b},
		Messages:     []Message{},
		CreatedAt:    now,
		LastUpdated:  now,
	}
}

// Participant returns the participant record for identity, or nil.
func (c *Conversation) Participant(identity string) *Participant {
	identity = NormalizeIdentity(identity)
	for i := range c.Participants {
		if NormalizeIdentity(c.Participants[i].Email) == identity {
			return &c.Participants[i]
		}
	}
	return nil
}

// HasMessage reports whether a message with the given client id is already stored.
func (c *Conversation) HasMessage(clientMessageID string) bool {
	if clientMessageID == "" {
		return false
	}
	for _, m := range c.Messages {
		if m.ClientMessageID == clientMessageID {
			return true
		}
	}
	return false
}

// Summary builds the listing view for identity.
func (c *Conversation) Summary(identity string) ConversationSummary {
	s := ConversationSummary{
		ID:            c.ID,
		Participants:  c.Participants,
		LastMessageAt: c.CreatedAt,
	}
	if n := len(c.Messages); n > 0 {
		last := c.Messages[n-1]
		s.LastMessage = &last
		s.LastMessageAt = last.Timestamp
	}
	if p := c.Participant(identity); p != nil {
		s.Unread = !p.Read
	}
	return s
}
