package event

import (
	"encoding/json"
	"time"
)

const (
	// client -> server
	EventIdentify = "identify"
	EventSend     = "send"

	// server -> client
	EventPresenceRoster  = "presenceRoster"
	EventIncomingMessage = "incomingMessage"
	EventDeliveryFailed  = "deliveryFailed"
	EventError           = "error"
)

// Error codes carried by EventError frames.
const (
	CodeBadPayload    = "bad_payload"
	CodeUnknownEvent  = "unknown_event"
	CodeNotIdentified = "not_identified"
	CodeInvalid       = "invalid_argument"
	CodeNotFound      = "not_found"
	CodeInternal      = "internal"
)

const (
	offlineNotice     = "User is offline"
	undeliveredNotice = "Message could not be delivered"
)

type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Identify struct {
	Identity string `json:"identity"`
}

// Send is a client message. Timestamp is accepted in any JSON form and never read: the server
// stamps messages itself.
type Send struct {
	Recipient       string          `json:"recipient"`
	Text            string          `json:"text"`
	Sender          string          `json:"sender,omitempty"`
	Timestamp       json.RawMessage `json:"timestamp,omitempty"`
	ClientMessageID string          `json:"clientMessageId,omitempty"`
}

type PresenceRoster struct {
	Identities []string `json:"identities"`
}

type Sender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type IncomingMessage struct {
	ConversationID string    `json:"conversationId"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

type DeliveryFailed struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New wraps payload into an envelope.
func New(name string, payload any) (WsEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return WsEvent{}, err
	}
	return WsEvent{Event: name, Payload: raw}, nil
}

// Offline builds the deliveryFailed notice for recipient.
func Offline(recipient string) DeliveryFailed {
	return DeliveryFailed{Recipient: recipient, Message: offlineNotice}
}

// Undelivered builds the deliveryFailed notice for a recipient that is online but whose session
// did not take the message.
func Undelivered(recipient string) DeliveryFailed {
	return DeliveryFailed{Recipient: recipient, Message: undeliveredNotice}
}
