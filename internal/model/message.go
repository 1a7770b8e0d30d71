package model

import (
	"time"
)

// Message is embedded in a Conversation and is not addressable on its own.
type Message struct {
	ID              string    `json:"id" bson:"id"`
	ClientMessageID string    `json:"clientMessageId,omitempty" bson:"client_message_id,omitempty"`
	SenderEmail     string    `json:"senderEmail" bson:"sender_email"`
	SenderName      string    `json:"senderName" bson:"sender_name"`
	Text            string    `json:"text" bson:"text"`
	Timestamp       time.Time `json:"timestamp" bson:"timestamp"`
}

// Sender is the display snapshot of a message author.
type Sender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// HistoryMessage is the shape returned by the history endpoint.
type HistoryMessage struct {
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// History converts a stored message into its history view.
func (m Message) History() HistoryMessage {
	return HistoryMessage{
		Text:      m.Text,
		Sender:    Sender{Email: m.SenderEmail, Name: m.SenderName},
		Timestamp: m.Timestamp,
	}
}
