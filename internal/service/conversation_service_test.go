package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anik12136/uiu-pathshala-server/internal/event"
	"github.com/anik12136/uiu-pathshala-server/internal/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	alice = "alice@uiu.ac.bd"
	bob   = "bob@uiu.ac.bd"
	carol = "carol@uiu.ac.bd"
)

type fixture struct {
	svc      *conversationService
	store    *memConversations
	users    *memUsers
	notifier *recordingNotifier
}

func setup(t *testing.T) *fixture {
	t.Helper()

	store := newMemConversations()
	users := newMemUsers(
		model.User{Email: alice, Name: "Alice"},
		model.User{Email: bob, Name: "Bob"},
		model.User{Email: carol, Name: "Carol"},
	)
	directory := NewUserService(users, nil, time.Minute, zap.NewNop())
	svc := NewConversationService(store, directory, zap.NewNop(), nil).(*conversationService)

	var tick int64
	var mu sync.Mutex
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	notifier := &recordingNotifier{online: map[string]bool{}}
	svc.SetNotifier(notifier)

	return &fixture{svc: svc, store: store, users: users, notifier: notifier}
}

func (f *fixture) send(t *testing.T, from, to, text string) *model.Conversation {
	t.Helper()
	conv, _, err := f.svc.AppendMessage(context.Background(), AppendInput{Sender: from, Recipient: to, Text: text})
	if err != nil {
		t.Fatalf("AppendMessage(%s -> %s) failed: %v", from, to, err)
	}
	return conv
}

func (f *fixture) load(t *testing.T, id primitive.ObjectID) *model.Conversation {
	t.Helper()
	conv, err := f.store.FindByID(context.Background(), id)
	if err != nil || conv == nil {
		t.Fatalf("conversation %s not stored: %v", id.Hex(), err)
	}
	return conv
}

func readFlag(t *testing.T, c *model.Conversation, identity string) bool {
	t.Helper()
	p := c.Participant(identity)
	if p == nil {
		t.Fatalf("%s is not a participant", identity)
	}
	return p.Read
}

func TestFirstContactThenReadThenAgain(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	conv, created, err := f.svc.AppendMessage(ctx, AppendInput{Sender: alice, Recipient: bob, Text: "hi"})
	if err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if !created {
		t.Errorf("expected first contact to create the conversation")
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conv.Messages))
	}
	if readFlag(t, conv, bob) {
		t.Errorf("recipient should be unread after first message")
	}
	if !readFlag(t, conv, alice) {
		t.Errorf("sender should start as read")
	}
	if got := conv.Messages[0].SenderName; got != "Alice" {
		t.Errorf("sender name snapshot = %q, want Alice", got)
	}

	if _, err := f.svc.MarkRead(ctx, conv.ID.Hex(), bob); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if !readFlag(t, f.load(t, conv.ID), bob) {
		t.Errorf("recipient should be read after MarkRead")
	}

	again, created, err := f.svc.AppendMessage(ctx, AppendInput{Sender: alice, Recipient: bob, Text: "again"})
	if err != nil {
		t.Fatalf("second send failed: %v", err)
	}
	if created {
		t.Errorf("second send must reuse the conversation")
	}
	if again.ID != conv.ID {
		t.Errorf("second send went to %s, want %s", again.ID.Hex(), conv.ID.Hex())
	}
	if len(again.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(again.Messages))
	}
	if readFlag(t, again, bob) {
		t.Errorf("recipient flag should flip back to unread")
	}
}

func TestAppendLeavesSenderFlagUnchanged(t *testing.T) {
	f := setup(t)

	conv := f.send(t, bob, alice, "ping")
	if readFlag(t, conv, alice) {
		t.Fatalf("alice should be unread after bob's message")
	}

	// Alice answers without reading first: her own flag stays as it was.
	conv = f.send(t, alice, bob, "pong")
	if readFlag(t, conv, alice) {
		t.Errorf("sender flag changed by own append")
	}
	if readFlag(t, conv, bob) {
		t.Errorf("recipient flag should be unread")
	}
}

func TestPairLookupIsOrderIndependent(t *testing.T) {
	f := setup(t)

	first := f.send(t, alice, bob, "one")
	second := f.send(t, bob, alice, "two")
	third := f.send(t, "  BOB@uiu.ac.bd ", "Alice@UIU.ac.bd", "three")

	if first.ID != second.ID || second.ID != third.ID {
		t.Fatalf("expected one conversation, got %s %s %s", first.ID.Hex(), second.ID.Hex(), third.ID.Hex())
	}
	if n := f.store.count(); n != 1 {
		t.Errorf("store holds %d conversations, want 1", n)
	}
	if len(third.Messages) != 3 {
		t.Errorf("expected 3 messages, got %d", len(third.Messages))
	}
}

func TestConcurrentFirstContactCreatesOneConversation(t *testing.T) {
	f := setup(t)

	// Hold both creators at the insert until each has seen "no conversation".
	var arrived sync.WaitGroup
	arrived.Add(2)
	f.store.beforeCreate = func() {
		arrived.Done()
		arrived.Wait()
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i, pair := range [][2]string{{alice, bob}, {bob, alice}} {
		wg.Add(1)
		go func(i int, from, to string) {
			defer wg.Done()
			_, _, err := f.svc.AppendMessage(context.Background(), AppendInput{
				Sender:    from,
				Recipient: to,
				Text:      fmt.Sprintf("race %d", i),
			})
			errs <- err
		}(i, pair[0], pair[1])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent send failed: %v", err)
		}
	}

	if f.store.creates != 2 {
		t.Fatalf("expected both senders to attempt creation, got %d attempts", f.store.creates)
	}
	if n := f.store.count(); n != 1 {
		t.Fatalf("store holds %d conversations, want 1", n)
	}

	conv, _ := f.store.FindByPair(context.Background(), alice, bob)
	if len(conv.Messages) != 2 {
		t.Errorf("losing sender's message was dropped: %d messages", len(conv.Messages))
	}
}

func TestConcurrentResolveOrCreateIsIdempotent(t *testing.T) {
	f := setup(t)

	var arrived sync.WaitGroup
	arrived.Add(2)
	f.store.beforeCreate = func() {
		arrived.Done()
		arrived.Wait()
	}

	var wg sync.WaitGroup
	ids := make([]primitive.ObjectID, 2)
	createdCount := 0
	var mu sync.Mutex
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, created, err := f.svc.ResolveOrCreate(context.Background(), ResolveInput{IdentityA: alice, IdentityB: bob})
			if err != nil {
				t.Errorf("ResolveOrCreate failed: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[i] = conv.ID
			if created {
				createdCount++
			}
		}(i)
	}
	wg.Wait()

	if ids[0] != ids[1] {
		t.Errorf("callers got different conversations: %s vs %s", ids[0].Hex(), ids[1].Hex())
	}
	if createdCount != 1 {
		t.Errorf("expected exactly one caller to report creation, got %d", createdCount)
	}
	if n := f.store.count(); n != 1 {
		t.Errorf("store holds %d conversations, want 1", n)
	}
}

func TestConcurrentAppendsAllPersist(t *testing.T) {
	f := setup(t)
	conv := f.send(t, alice, bob, "seed")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := alice, bob
			if i%2 == 1 {
				from, to = bob, alice
			}
			if _, _, err := f.svc.AppendMessage(context.Background(), AppendInput{
				Sender:    from,
				Recipient: to,
				Text:      fmt.Sprintf("msg %d", i),
			}); err != nil {
				t.Errorf("append %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	stored := f.load(t, conv.ID)
	if got := len(stored.Messages); got != n+1 {
		t.Errorf("messages = %d, want %d", got, n+1)
	}
}

func TestResolveOrCreateStartsWithNoUnread(t *testing.T) {
	f := setup(t)

	conv, created, err := f.svc.ResolveOrCreate(context.Background(), ResolveInput{
		IdentityA: alice,
		IdentityB: bob,
		NameB:     "Bobby",
	})
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	if !created {
		t.Errorf("expected creation")
	}
	if len(conv.Messages) != 0 {
		t.Errorf("explicit create must not add messages")
	}
	if !readFlag(t, conv, alice) || !readFlag(t, conv, bob) {
		t.Errorf("both participants should start as read: %+v", conv.Participants)
	}
	if got := conv.Participant(bob).Name; got != "Bobby" {
		t.Errorf("supplied name not used: %q", got)
	}

	again, created, err := f.svc.ResolveOrCreate(context.Background(), ResolveInput{IdentityA: bob, IdentityB: alice})
	if err != nil {
		t.Fatalf("second ResolveOrCreate failed: %v", err)
	}
	if created || again.ID != conv.ID {
		t.Errorf("second call must return the existing conversation")
	}
}

func TestAppendValidation(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name string
		in   AppendInput
		want error
	}{
		{"empty text", AppendInput{Sender: alice, Recipient: bob, Text: "   "}, ErrInvalidArgument},
		{"missing sender", AppendInput{Recipient: bob, Text: "x"}, ErrInvalidArgument},
		{"missing recipient", AppendInput{Sender: alice, Text: "x"}, ErrInvalidArgument},
		{"self", AppendInput{Sender: alice, Recipient: "ALICE@uiu.ac.bd", Text: "x"}, ErrInvalidArgument},
		{"unknown recipient", AppendInput{Sender: alice, Recipient: "ghost@uiu.ac.bd", Text: "x"}, ErrNotFound},
		{"unknown sender", AppendInput{Sender: "ghost@uiu.ac.bd", Recipient: bob, Text: "x"}, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.AppendMessage(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want kind %v", err, tt.want)
			}
		})
	}

	if n := f.store.count(); n != 0 {
		t.Errorf("failed appends left %d conversations behind", n)
	}
}

func TestClientMessageIDAppendsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	in := AppendInput{Sender: alice, Recipient: bob, Text: "exactly once", ClientMessageID: "c-1"}

	first, err := f.svc.SendMessage(ctx, in)
	if err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	second, err := f.svc.SendMessage(ctx, in)
	if err != nil {
		t.Fatalf("replayed send failed: %v", err)
	}

	if !second.Replayed {
		t.Errorf("second send should be reported as replayed")
	}
	if second.Message.ID != first.Message.ID {
		t.Errorf("replay returned message %s, want stored %s", second.Message.ID, first.Message.ID)
	}
	if got := len(f.load(t, first.Conversation.ID).Messages); got != 1 {
		t.Errorf("messages = %d, want 1", got)
	}
}

func TestSendMessagePersistsBeforeNotify(t *testing.T) {
	f := setup(t)
	f.notifier.online[bob] = true

	var storedAtNotify int
	f.notifier.onNotify = func(recipient string, msg event.IncomingMessage) {
		id, _ := primitive.ObjectIDFromHex(msg.ConversationID)
		if c, _ := f.store.FindByID(context.Background(), id); c != nil {
			storedAtNotify = len(c.Messages)
		}
	}

	res, err := f.svc.SendMessage(context.Background(), AppendInput{Sender: alice, Recipient: bob, Text: "hello"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if !res.Delivered {
		t.Errorf("expected live delivery to online recipient")
	}
	if storedAtNotify != 1 {
		t.Errorf("live push happened before the append was stored")
	}
	if len(f.notifier.pushed) != 1 || f.notifier.pushed[0].Sender.Email != alice || f.notifier.pushed[0].Text != "hello" {
		t.Errorf("unexpected push: %+v", f.notifier.pushed)
	}
}

func TestSendMessageToOfflineRecipientStillPersists(t *testing.T) {
	f := setup(t)

	res, err := f.svc.SendMessage(context.Background(), AppendInput{Sender: alice, Recipient: bob, Text: "later"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if res.Delivered {
		t.Errorf("offline recipient reported as delivered")
	}
	if got := len(f.load(t, res.Conversation.ID).Messages); got != 1 {
		t.Errorf("messages = %d, want 1", got)
	}
}

func TestMarkRead(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	conv := f.send(t, alice, bob, "hi")
	before := f.load(t, conv.ID)

	if _, err := f.svc.MarkRead(ctx, conv.ID.Hex(), bob); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	again, err := f.svc.MarkRead(ctx, conv.ID.Hex(), bob)
	if err != nil {
		t.Fatalf("repeated MarkRead must be a no-op, got %v", err)
	}

	if !readFlag(t, again, bob) {
		t.Errorf("bob should be read")
	}
	if readFlag(t, again, alice) != readFlag(t, before, alice) {
		t.Errorf("alice's flag changed")
	}
	if !again.LastUpdated.Equal(before.LastUpdated) {
		t.Errorf("lastUpdated changed from %v to %v", before.LastUpdated, again.LastUpdated)
	}
	if len(again.Messages) != len(before.Messages) {
		t.Errorf("message log changed")
	}

	tests := []struct {
		name     string
		id       string
		identity string
		want     error
	}{
		{"not a participant", conv.ID.Hex(), carol, ErrNotParticipant},
		{"unknown conversation", primitive.NewObjectID().Hex(), bob, ErrConversationNotFound},
		{"malformed id", "not-an-id", bob, ErrInvalidArgument},
		{"missing id", "", bob, ErrInvalidArgument},
		{"missing identity", conv.ID.Hex(), "", ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.MarkRead(ctx, tt.id, tt.identity)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestListConversations(t *testing.T) {
	f := setup(t)
	ab := f.send(t, alice, bob, "a->b")
	bc := f.send(t, bob, carol, "b->c")
	ac := f.send(t, carol, alice, "c->a")

	summaries, err := f.svc.ListConversations(context.Background(), alice)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}

	got := map[primitive.ObjectID]model.ConversationSummary{}
	for _, s := range summaries {
		got[s.ID] = s
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 conversations for alice, got %d", len(got))
	}
	if _, ok := got[bc.ID]; ok {
		t.Errorf("listing includes a conversation alice is not in")
	}
	if summaries[0].ID != ac.ID {
		t.Errorf("most recent conversation should come first")
	}
	if !got[ac.ID].Unread {
		t.Errorf("carol's message should be unread for alice")
	}
	if got[ab.ID].Unread {
		t.Errorf("alice sent the last message to bob, should not be unread")
	}
	if got[ab.ID].LastMessage == nil || got[ab.ID].LastMessage.Text != "a->b" {
		t.Errorf("unexpected last message: %+v", got[ab.ID].LastMessage)
	}
	if !got[ab.ID].LastMessageAt.Equal(ab.Messages[0].Timestamp) {
		t.Errorf("lastMessageAt should be the last message timestamp")
	}

	if _, err := f.svc.ListConversations(context.Background(), " "); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty identity: err = %v", err)
	}
}

func TestListConversationsUsesCreationTimeWithoutMessages(t *testing.T) {
	f := setup(t)
	conv, _, err := f.svc.ResolveOrCreate(context.Background(), ResolveInput{IdentityA: alice, IdentityB: bob})
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}

	summaries, err := f.svc.ListConversations(context.Background(), bob)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if !summaries[0].LastMessageAt.Equal(conv.CreatedAt) {
		t.Errorf("lastMessageAt = %v, want creation time %v", summaries[0].LastMessageAt, conv.CreatedAt)
	}
	if summaries[0].LastMessage != nil || summaries[0].Unread {
		t.Errorf("empty conversation should have no last message and no unread")
	}
}

func TestGetHistory(t *testing.T) {
	f := setup(t)
	var conv *model.Conversation
	for i := 0; i < 60; i++ {
		conv = f.send(t, alice, bob, fmt.Sprintf("m%d", i))
	}

	all, err := f.svc.GetHistory(context.Background(), conv.ID.Hex(), 0)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(all.Data) != 60 {
		t.Fatalf("expected 60 messages, got %d", len(all.Data))
	}
	if all.Data[0].Text != "m0" || all.Data[59].Text != "m59" {
		t.Errorf("history is not in stored order")
	}
	if all.Data[0].Sender.Email != alice || all.Data[0].Sender.Name != "Alice" {
		t.Errorf("unexpected sender: %+v", all.Data[0].Sender)
	}

	page2, err := f.svc.GetHistory(context.Background(), conv.ID.Hex(), 2)
	if err != nil {
		t.Fatalf("GetHistory page 2 failed: %v", err)
	}
	if len(page2.Data) != 10 || page2.TotalPages != 2 || page2.Data[0].Text != "m50" {
		t.Errorf("unexpected page 2: len=%d pages=%d", len(page2.Data), page2.TotalPages)
	}

	if _, err := f.svc.GetHistory(context.Background(), primitive.NewObjectID().Hex(), 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown conversation: err = %v", err)
	}
	if _, err := f.svc.GetHistory(context.Background(), "", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("missing id: err = %v", err)
	}
}
