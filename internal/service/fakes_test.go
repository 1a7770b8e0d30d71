package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anik12136/uiu-pathshala-server/internal/cache"
	"github.com/anik12136/uiu-pathshala-server/internal/event"
	"github.com/anik12136/uiu-pathshala-server/internal/model"
	"github.com/anik12136/uiu-pathshala-server/internal/repo"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memConversations is an in-memory Conversation Store with the same matching rules
// as the Mongo repository, including the unique pair key.
type memConversations struct {
	mu     sync.Mutex
	byID   map[primitive.ObjectID]*model.Conversation
	byPair map[string]primitive.ObjectID

	beforeCreate func()
	creates      int
}

func newMemConversations() *memConversations {
	return &memConversations{
		byID:   make(map[primitive.ObjectID]*model.Conversation),
		byPair: make(map[string]primitive.ObjectID),
	}
}

func clone(c *model.Conversation) *model.Conversation {
	out := *c
	out.Participants = append([]model.Participant(nil), c.Participants...)
	out.Messages = append([]model.Message(nil), c.Messages...)
	return &out
}

func (m *memConversations) Create(_ context.Context, c *model.Conversation) (*model.Conversation, error) {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++

	if _, ok := m.byPair[c.PairKey]; ok {
		return nil, repo.ErrDuplicateConversation
	}
	doc := clone(c)
	doc.ID = primitive.NewObjectID()
	m.byID[doc.ID] = doc
	m.byPair[doc.PairKey] = doc.ID
	return clone(doc), nil
}

func (m *memConversations) FindByID(_ context.Context, id primitive.ObjectID) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byID[id]; ok {
		return clone(c), nil
	}
	return nil, nil
}

func (m *memConversations) FindByPair(_ context.Context, a, b string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byPair[model.PairKey(a, b)]; ok {
		return clone(m.byID[id]), nil
	}
	return nil, nil
}

func (m *memConversations) ListByParticipant(_ context.Context, identity string) ([]model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Conversation
	for _, c := range m.byID {
		if c.Participant(identity) == nil {
			continue
		}
		cp := clone(c)
		if n := len(cp.Messages); n > 1 {
			cp.Messages = cp.Messages[n-1:]
		}
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	return out, nil
}

func (m *memConversations) AppendMessage(_ context.Context, id primitive.ObjectID, recipient string, msg model.Message) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	p := c.Participant(recipient)
	if p == nil || c.HasMessage(msg.ClientMessageID) {
		return nil, nil
	}
	c.Messages = append(c.Messages, msg)
	c.LastUpdated = msg.Timestamp
	p.Read = false
	return clone(c), nil
}

func (m *memConversations) MarkRead(_ context.Context, id primitive.ObjectID, identity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	p := c.Participant(identity)
	if p == nil {
		return false, nil
	}
	p.Read = true
	return true, nil
}

func (m *memConversations) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type memUsers struct {
	mu      sync.Mutex
	users   map[string]model.User
	lookups int
}

func newMemUsers(users ...model.User) *memUsers {
	m := &memUsers{users: make(map[string]model.User)}
	for _, u := range users {
		m.users[u.Email] = u
	}
	return m
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if u, ok := m.users[email]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *memUsers) Search(_ context.Context, pattern string, limit int64) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.User
	needle := strings.ToLower(strings.ReplaceAll(pattern, `\`, ""))
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Name), needle) || strings.Contains(strings.ToLower(u.Email), needle) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]string)}
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Ping(context.Context) error { return nil }
func (c *memCache) Close() error               { return nil }

type recordingNotifier struct {
	mu       sync.Mutex
	online   map[string]bool
	pushed   []event.IncomingMessage
	onNotify func(recipient string, msg event.IncomingMessage)
}

func (n *recordingNotifier) NotifyMessage(recipient string, msg event.IncomingMessage) bool {
	if n.onNotify != nil {
		n.onNotify(recipient, msg)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.online[recipient] {
		return false
	}
	n.pushed = append(n.pushed, msg)
	return true
}
