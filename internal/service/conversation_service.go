package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anik12136/uiu-pathshala-server/internal/db"
	"github.com/anik12136/uiu-pathshala-server/internal/event"
	"github.com/anik12136/uiu-pathshala-server/internal/metrics"
	"github.com/anik12136/uiu-pathshala-server/internal/model"
	"github.com/anik12136/uiu-pathshala-server/internal/repo"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const historyPageSize = 50

// Notifier pushes a live message to the recipient's session. It reports whether a session took it.
type Notifier interface {
	NotifyMessage(recipient string, msg event.IncomingMessage) bool
}

type ResolveInput struct {
	IdentityA string
	NameA     string
	IdentityB string
	NameB     string
}

type AppendInput struct {
	Sender          string
	Recipient       string
	Text            string
	SenderName      string
	RecipientName   string
	ClientMessageID string
}

type SendResult struct {
	Conversation *model.Conversation `json:"conversation"`
	Message      model.Message       `json:"message"`
	Created      bool                `json:"created"`
	Replayed     bool                `json:"replayed"`
	Delivered    bool                `json:"delivered"`
}

type ConversationService interface {
	ResolveOrCreate(ctx context.Context, in ResolveInput) (*model.Conversation, bool, error)
	AppendMessage(ctx context.Context, in AppendInput) (*model.Conversation, bool, error)
	SendMessage(ctx context.Context, in AppendInput) (*SendResult, error)
	MarkRead(ctx context.Context, conversationID string, identity string) (*model.Conversation, error)
	ListConversations(ctx context.Context, identity string) ([]model.ConversationSummary, error)
	GetHistory(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.HistoryMessage], error)
	SetNotifier(n Notifier)
}

type conversationService struct {
	conversations repo.ConversationRepository
	users         UserService
	notifier      Notifier
	logger        *zap.Logger
	metrics       *metrics.Metrics

	now   func() time.Time
	newID func() string
}

func NewConversationService(conversations repo.ConversationRepository, users UserService, logger *zap.Logger, m *metrics.Metrics) ConversationService {
	return &conversationService{
		conversations: conversations,
		users:         users,
		logger:        logger,
		metrics:       m,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
}

// SetNotifier wires the live push. Call it once, before serving traffic.
func (s *conversationService) SetNotifier(n Notifier) {
	s.notifier = n
}

// ResolveOrCreate returns the single conversation between the two identities, creating it with
// an empty message log when absent. The bool reports whether this call created it.
func (s *conversationService) ResolveOrCreate(ctx context.Context, in ResolveInput) (*model.Conversation, bool, error) {
	a, b, err := normalizePair(in.IdentityA, in.IdentityB)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.conversations.FindByPair(ctx, a, b)
	if err != nil {
		return nil, false, internalError("find conversation", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	pa, pb, err := s.participants(ctx, a, in.NameA, b, in.NameB)
	if err != nil {
		return nil, false, err
	}

	created, err := s.create(ctx, model.NewConversation(pa, pb, s.now()))
	if err == nil {
		s.metrics.RecordConversationCreated()
		return created, true, nil
	}
	if !errors.Is(err, ErrConflict) {
		return nil, false, err
	}

	winner, err := s.winner(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	return winner, false, nil
}

// AppendMessage stores text from sender to recipient. On first contact the conversation is
// created together with the message. The bool reports whether the conversation was created.
func (s *conversationService) AppendMessage(ctx context.Context, in AppendInput) (*model.Conversation, bool, error) {
	res, err := s.appendMessage(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return res.Conversation, res.Created, nil
}

// SendMessage appends durably and then pushes the message live. A failed push never undoes the append.
func (s *conversationService) SendMessage(ctx context.Context, in AppendInput) (*SendResult, error) {
	res, err := s.appendMessage(ctx, in)
	if err != nil {
		return nil, err
	}

	if res.Replayed || s.notifier == nil {
		return res, nil
	}

	res.Delivered = s.notifier.NotifyMessage(model.NormalizeIdentity(in.Recipient), event.IncomingMessage{
		ConversationID: res.Conversation.ID.Hex(),
		Sender: event.Sender{
			Email: res.Message.SenderEmail,
			Name:  res.Message.SenderName,
		},
		Text:      res.Message.Text,
		Timestamp: res.Message.Timestamp,
	})
	return res, nil
}

func (s *conversationService) appendMessage(ctx context.Context, in AppendInput) (*SendResult, error) {
	sender, recipient, err := normalizePair(in.Sender, in.Recipient)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyText
	}
	in.ClientMessageID = strings.TrimSpace(in.ClientMessageID)

	conversation, err := s.conversations.FindByPair(ctx, sender, recipient)
	if err != nil {
		return nil, internalError("find conversation", err)
	}

	if conversation == nil {
		res, err := s.createWithMessage(ctx, sender, recipient, in)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}

		// Lost the create race: the message goes to the winner.
		conversation, err = s.winner(ctx, sender, recipient)
		if err != nil {
			return nil, err
		}
	}

	return s.push(ctx, conversation, sender, recipient, in)
}

func (s *conversationService) createWithMessage(ctx context.Context, sender, recipient string, in AppendInput) (*SendResult, error) {
	ps, pr, err := s.participants(ctx, sender, in.SenderName, recipient, in.RecipientName)
	if err != nil {
		return nil, err
	}

	now := s.now()
	msg := s.message(sender, ps.Name, in, now)

	conversation := model.NewConversation(ps, pr, now)
	conversation.Messages = []model.Message{msg}
	conversation.Participant(recipient).Read = false

	created, err := s.create(ctx, conversation)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordConversationCreated()
	s.metrics.RecordAppend(metrics.PathCreated)
	return &SendResult{Conversation: created, Message: msg, Created: true}, nil
}

func (s *conversationService) push(ctx context.Context, conversation *model.Conversation, sender, recipient string, in AppendInput) (*SendResult, error) {
	senderName := in.SenderName
	if senderName == "" {
		if p := conversation.Participant(sender); p != nil {
			senderName = p.Name
		}
	}

	msg := s.message(sender, senderName, in, s.now())

	updated, err := s.conversations.AppendMessage(ctx, conversation.ID, recipient, msg)
	if err != nil {
		return nil, internalError("append message", err)
	}
	if updated != nil {
		s.metrics.RecordAppend(metrics.PathExisting)
		return &SendResult{Conversation: updated, Message: msg}, nil
	}

	// Nothing matched: work out why.
	current, err := s.conversations.FindByID(ctx, conversation.ID)
	if err != nil {
		return nil, internalError("find conversation", err)
	}
	if current == nil {
		return nil, ErrConversationNotFound
	}
	if current.HasMessage(in.ClientMessageID) {
		s.logger.Info("duplicate client message ignored",
			zap.String("conversation_id", current.ID.Hex()),
			zap.String("client_message_id", in.ClientMessageID),
		)
		s.metrics.RecordAppend(metrics.PathReplayed)
		stored := msg
		for _, m := range current.Messages {
			if m.ClientMessageID == in.ClientMessageID {
				stored = m
				break
			}
		}
		return &SendResult{Conversation: current, Message: stored, Replayed: true}, nil
	}
	return nil, ErrNotParticipant
}

// MarkRead sets identity's read flag and returns the conversation afterwards.
func (s *conversationService) MarkRead(ctx context.Context, conversationID string, identity string) (*model.Conversation, error) {
	id, err := parseConversationID(conversationID)
	if err != nil {
		return nil, err
	}
	identity = model.NormalizeIdentity(identity)
	if identity == "" {
		return nil, ErrMissingIdentity
	}

	matched, err := s.conversations.MarkRead(ctx, id, identity)
	if err != nil {
		return nil, internalError("mark read", err)
	}

	conversation, err := s.conversations.FindByID(ctx, id)
	if err != nil {
		return nil, internalError("find conversation", err)
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	if !matched {
		return nil, ErrNotParticipant
	}
	return conversation, nil
}

func (s *conversationService) ListConversations(ctx context.Context, identity string) ([]model.ConversationSummary, error) {
	identity = model.NormalizeIdentity(identity)
	if identity == "" {
		return nil, ErrMissingIdentity
	}

	conversations, err := s.conversations.ListByParticipant(ctx, identity)
	if err != nil {
		return nil, internalError("list conversations", err)
	}

	return Map(conversations, func(c model.Conversation) model.ConversationSummary {
		return c.Summary(identity)
	}), nil
}

// GetHistory returns messages in stored order. A page below 1 returns all of them.
func (s *conversationService) GetHistory(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.HistoryMessage], error) {
	id, err := parseConversationID(conversationID)
	if err != nil {
		return nil, err
	}

	conversation, err := s.conversations.FindByID(ctx, id)
	if err != nil {
		return nil, internalError("find conversation", err)
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	history := Map(conversation.Messages, model.Message.History)
	return db.Paginate(history, db.PaginationParams{Page: page, PageSize: historyPageSize}), nil
}

// participants resolves both users against the directory. A supplied name overrides the
// directory name but the user must still exist.
func (s *conversationService) participants(ctx context.Context, a, nameA, b, nameB string) (model.Participant, model.Participant, error) {
	resolvedA, err := s.resolveName(ctx, a, nameA)
	if err != nil {
		return model.Participant{}, model.Participant{}, err
	}
	resolvedB, err := s.resolveName(ctx, b, nameB)
	if err != nil {
		return model.Participant{}, model.Participant{}, err
	}
	return model.Participant{Email: a, Name: resolvedA}, model.Participant{Email: b, Name: resolvedB}, nil
}

func (s *conversationService) resolveName(ctx context.Context, identity, supplied string) (string, error) {
	name, err := s.users.DisplayName(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrUserNotFound, identity)
		}
		return "", err
	}
	if supplied = strings.TrimSpace(supplied); supplied != "" {
		return supplied, nil
	}
	return name, nil
}

func (s *conversationService) create(ctx context.Context, conversation *model.Conversation) (*model.Conversation, error) {
	created, err := s.conversations.Create(ctx, conversation)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateConversation) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, internalError("create conversation", err)
	}
	return created, nil
}

func (s *conversationService) winner(ctx context.Context, a, b string) (*model.Conversation, error) {
	s.logger.Debug("create race lost, loading existing conversation",
		zap.String("pair_key", model.PairKey(a, b)),
	)
	winner, err := s.conversations.FindByPair(ctx, a, b)
	if err != nil {
		return nil, internalError("find conversation", err)
	}
	if winner == nil {
		return nil, internalError("find conversation", fmt.Errorf("duplicate reported for %s but no document found", model.PairKey(a, b)))
	}
	return winner, nil
}

func (s *conversationService) message(sender, senderName string, in AppendInput, now time.Time) model.Message {
	return model.Message{
		ID:              s.newID(),
		ClientMessageID: in.ClientMessageID,
		SenderEmail:     sender,
		SenderName:      senderName,
		Text:            in.Text,
		Timestamp:       now,
	}
}

func normalizePair(a, b string) (string, string, error) {
	a, b = model.NormalizeIdentity(a), model.NormalizeIdentity(b)
	if a == "" || b == "" {
		return "", "", ErrMissingIdentity
	}
	if a == b {
		return "", "", ErrSameParticipant
	}
	return a, b, nil
}

func parseConversationID(conversationID string) (primitive.ObjectID, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return primitive.NilObjectID, fmt.Errorf("%w: conversation id is required", ErrInvalidArgument)
	}
	id, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidConversationID
	}
	return id, nil
}
