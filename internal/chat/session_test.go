package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"estospaces/internal/model"
)

// fakeSubscription is a manually driven realtime channel for tests.
type fakeSubscription struct {
	ch     chan model.Message
	mu     sync.Mutex
	closed bool
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{ch: make(chan model.Message, 16)}
}

func (f *fakeSubscription) Events() <-chan model.Message { return f.ch }

func (f *fakeSubscription) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

func (f *fakeSubscription) deliver(msg model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.ch <- msg
	}
}

func (f *fakeSubscription) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeBackend is an in-memory Backend with switchable failure modes.
type fakeBackend struct {
	mu            sync.Mutex
	conversations map[string]model.Conversation
	messages      map[string][]model.Message
	nextConv      int
	nextMsg       int
	subs          []*fakeSubscription

	lookupErr     error
	createConvErr error
	createMsgErr  error
	historyErr    error
	subscribeErr  error
	notifyErr     error

	createConvCalls int
	notifyCalls     []StartedNotification

	// onCreateMessage runs while a visitor send is in flight, so tests
	// can observe the optimistic state.
	onCreateMessage func()
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		conversations: make(map[string]model.Conversation),
		messages:      make(map[string][]model.Message),
	}
}

func (f *fakeBackend) ConversationByVisitor(_ context.Context, visitorID string) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return model.Conversation{}, f.lookupErr
	}
	conv, ok := f.conversations[visitorID]
	if !ok {
		return model.Conversation{}, &BackendError{Kind: KindNotFound, Err: errors.New("no rows")}
	}
	return conv, nil
}

func (f *fakeBackend) CreateConversation(_ context.Context, visitorID, name, email string) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createConvCalls++
	if f.createConvErr != nil {
		return model.Conversation{}, f.createConvErr
	}
	if _, exists := f.conversations[visitorID]; exists {
		return model.Conversation{}, &BackendError{Kind: KindUniqueViolation, Err: errors.New("duplicate visitor_id")}
	}
	f.nextConv++
	conv := model.Conversation{
		ID:           fmt.Sprintf("conv-%d", f.nextConv),
		VisitorID:    visitorID,
		VisitorName:  name,
		VisitorEmail: email,
		CreatedAt:    time.Now(),
	}
	f.conversations[visitorID] = conv
	return conv, nil
}

func (f *fakeBackend) CreateMessage(_ context.Context, conversationID string, sender model.SenderType, text string) (model.Message, error) {
	if hook := f.hook(); hook != nil && sender == model.SenderVisitor {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createMsgErr != nil {
		return model.Message{}, f.createMsgErr
	}
	f.nextMsg++
	msg := model.Message{
		ID:             fmt.Sprintf("msg-%d", f.nextMsg),
		ConversationID: conversationID,
		SenderType:     sender,
		Message:        text,
		CreatedAt:      time.Now(),
	}
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	return msg, nil
}

func (f *fakeBackend) hook() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onCreateMessage
}

func (f *fakeBackend) MessagesByConversation(_ context.Context, conversationID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	out := make([]model.Message, len(f.messages[conversationID]))
	copy(out, f.messages[conversationID])
	return out, nil
}

func (f *fakeBackend) Subscribe(string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	sub := newFakeSubscription()
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeBackend) NotifyConversationStarted(_ context.Context, n StartedNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifyCalls = append(f.notifyCalls, n)
	return f.notifyErr
}

func (f *fakeBackend) lastSub(t *testing.T) *fakeSubscription {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		t.Fatal("no subscription was opened")
	}
	return f.subs[len(f.subs)-1]
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

// TestLoadConversation_NoExisting verifies that a missing conversation
// is not an error
func TestLoadConversation_NoExisting(t *testing.T) {
	backend := newFakeBackend()
	s := NewSession(backend, "V1")
	defer s.Close()

	if err := s.LoadConversation(context.Background()); err != nil {
		t.Fatalf("LoadConversation returned error: %v", err)
	}
	if s.State() != StateNoConversation {
		t.Errorf("Expected StateNoConversation, got %v", s.State())
	}
	if s.Err() != nil {
		t.Errorf("Expected no recorded error, got %v", s.Err())
	}
}

// TestLoadConversation_Existing resumes the visitor's conversation and
// loads its history
func TestLoadConversation_Existing(t *testing.T) {
	backend := newFakeBackend()
	conv, _ := backend.CreateConversation(context.Background(), "V1", "Ann", "ann@x.com")
	backend.CreateMessage(context.Background(), conv.ID, model.SenderAdmin, "welcome")
	backend.CreateMessage(context.Background(), conv.ID, model.SenderVisitor, "hi")

	s := NewSession(backend, "V1")
	defer s.Close()

	if err := s.LoadConversation(context.Background()); err != nil {
		t.Fatalf("LoadConversation returned error: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("Expected StateReady, got %v", s.State())
	}
	got, ok := s.Conversation()
	if !ok || got.ID != conv.ID {
		t.Errorf("Expected conversation %s, got %+v", conv.ID, got)
	}
	if len(s.Messages()) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(s.Messages()))
	}
}

// TestLoadConversation_LookupFailureFailsOpen records the error but
// leaves the session usable
func TestLoadConversation_LookupFailureFailsOpen(t *testing.T) {
	backend := newFakeBackend()
	backend.lookupErr = &BackendError{Kind: KindOther, Err: errors.New("connection refused")}

	s := NewSession(backend, "V1")
	defer s.Close()

	if err := s.LoadConversation(context.Background()); err == nil {
		t.Fatal("Expected an error from LoadConversation")
	}
	if s.State() != StateNoConversation {
		t.Errorf("Expected StateNoConversation, got %v", s.State())
	}
	backend.mu.Lock()
	backend.lookupErr = nil
	backend.mu.Unlock()
	if err := s.StartConversation(context.Background(), "Ann", ""); err != nil {
		t.Fatalf("StartConversation after failed lookup: %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("Expected StateReady after recovery, got %v", s.State())
	}
}

// TestStartConversation_Success covers the V1/Ann scenario: new
// conversation, welcome message, admin notification
func TestStartConversation_Success(t *testing.T) {
	backend := newFakeBackend()
	s := NewSession(backend, "V1")
	defer s.Close()

	if err := s.LoadConversation(context.Background()); err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}
	if err := s.StartConversation(context.Background(), "Ann", "ann@x.com"); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	if s.State() != StateReady {
		t.Fatalf("Expected StateReady, got %v", s.State())
	}
	conv, ok := s.Conversation()
	if !ok {
		t.Fatal("Expected a conversation")
	}
	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected exactly one welcome message, got %d", len(msgs))
	}
	if msgs[0].SenderType != model.SenderAdmin {
		t.Errorf("Expected admin welcome message, got sender %q", msgs[0].SenderType)
	}
	if msgs[0].ConversationID != conv.ID {
		t.Errorf("Welcome message references %s, want %s", msgs[0].ConversationID, conv.ID)
	}
	if len(backend.notifyCalls) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(backend.notifyCalls))
	}
	if n := backend.notifyCalls[0]; n.Name != "Ann" || n.ConversationID != conv.ID || n.VisitorID != "V1" {
		t.Errorf("Unexpected notification payload: %+v", n)
	}
}

// TestStartConversation_Idempotent double-submits and expects a single
// backend create
func TestStartConversation_Idempotent(t *testing.T) {
	backend := newFakeBackend()
	s := NewSession(backend, "V1")
	defer s.Close()

	if err := s.StartConversation(context.Background(), "Ann", ""); err != nil {
		t.Fatalf("first StartConversation: %v", err)
	}
	first, _ := s.Conversation()
	if err := s.StartConversation(context.Background(), "Ann", ""); err != nil {
		t.Fatalf("second StartConversation: %v", err)
	}
	second, _ := s.Conversation()

	if backend.createConvCalls != 1 {
		t.Errorf("Expected 1 create call, got %d", backend.createConvCalls)
	}
	if first.ID != second.ID {
		t.Errorf("Conversation changed across double-submit: %s vs %s", first.ID, second.ID)
	}
}

// TestStartConversation_DuplicateRecovers loses the uniqueness race and
// converges on the existing conversation without a user-visible error
func TestStartConversation_DuplicateRecovers(t *testing.T) {
	backend := newFakeBackend()
	// Another tab already created the conversation.
	existing, _ := backend.CreateConversation(context.Background(), "V1", "Ann", "")

	s := NewSession(backend, "V1")
	defer s.Close()

	if err := s.StartConversation(context.Background(), "Ann", ""); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	conv, ok := s.Conversation()
	if !ok || conv.ID != existing.ID {
		t.Errorf("Expected to resolve to %s, got %+v", existing.ID, conv)
	}
	if s.Err() != nil {
		t.Errorf("Duplicate recovery must not surface an error, got %v", s.Err())
	}
	if s.State() != StateReady {
		t.Errorf("Expected StateReady, got %v", s.State())
	}
}

// TestStartConversation_CreateFailure stays in NoConversation with a
// recorded error
func TestStartConversation_CreateFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.createConvErr = &BackendError{Kind: KindOther, Err: errors.New("insert failed")}

	s := NewSession(backend, "V1")
	defer s.Close()
	s.LoadConversation(context.Background())

	if err := s.StartConversation(context.Background(), "Ann", ""); err == nil {
		t.Fatal("Expected StartConversation to fail")
	}
	if s.State() != StateNoConversation {
		t.Errorf("Expected StateNoConversation, got %v", s.State())
	}
	if s.Err() == nil {
		t.Error("Expected a recorded error")
	}
}

// TestStartConversation_NotificationFailureIgnored keeps the create
// successful when the side channel fails
func TestStartConversation_NotificationFailureIgnored(t *testing.T) {
	backend := newFakeBackend()
	backend.notifyErr = errors.New("smtp down")

	s := NewSession(backend, "V1")
	defer s.Close()

	if err := s.StartConversation(context.Background(), "Ann", ""); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("Expected StateReady, got %v", s.State())
	}
	if s.Err() != nil {
		t.Errorf("Notification failure must not be surfaced, got %v", s.Err())
	}
}

// TestStartConversation_Unconfigured communicates that chat is disabled
func TestStartConversation_Unconfigured(t *testing.T) {
	s := NewSession(Unconfigured{}, "V1")
	defer s.Close()

	err := s.StartConversation(context.Background(), "Ann", "")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Expected ErrBackendUnavailable, got %v", err)
	}
}

// TestSendMessage_OptimisticThenConfirmed checks the optimistic echo
// and its replacement by the confirmed record
func TestSendMessage_OptimisticThenConfirmed(t *testing.T) {
	backend := newFakeBackend()
	s := NewSession(backend, "V1")
	defer s.Close()
	if err := s.StartConversation(context.Background(), "Ann", ""); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	var pendingSeen bool
	backend.mu.Lock()
	backend.onCreateMessage = func() {
		for _, e := range s.Messages() {
			if e.Pending && e.Message.Message == "Hello" {
				pendingSeen = true
			}
		}
	}
	backend.mu.Unlock()

	if err := s.SendMessage(context.Background(), "Hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !pendingSeen {
		t.Error("Expected an unconfirmed entry to be visible while the send was in flight")
	}

	var confirmed []Entry
	for _, e := range s.Messages() {
		if e.Message.Message == "Hello" {
			confirmed = append(confirmed, e)
		}
	}
	if len(confirmed) != 1 {
		t.Fatalf("Expected exactly one entry for the sent message, got %d", len(confirmed))
	}
	if confirmed[0].Pending {
		t.Error("Entry is still marked pending after confirmation")
	}
	if len(confirmed[0].ID) < 4 || confirmed[0].ID[:4] != "msg-" {
		t.Errorf("Entry kept a temporary id: %s", confirmed[0].ID)
	}
}

// TestSendMessage_FailureRemovesOptimistic rolls the echo back and
// records the error
func TestSendMessage_FailureRemovesOptimistic(t *testing.T) {
	backend := newFakeBackend()
	s := NewSession(backend, "V1")
	defer s.Close()
	if err := s.StartConversation(context.Background(), "Ann", ""); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	before := len(s.Messages())

	backend.mu.Lock()
	backend.createMsgErr = &BackendError{Kind: KindOther, Err: errors.New("insert failed")}
	backend.mu.Unlock()

	if err := s.SendMessage(context.Background(), "Hello"); err == nil {
		t.Fatal("Expected SendMessage to fail")
	}
	if got := len(s.Messages()); got != before {
		t.Errorf("Expected list length %d after rollback, got %d", before, got)
	}
	if s.Err() == nil {
		t.Error("Expected a recorded error")
	}
}

// TestSendMessage_NoConversation is a no-op per the widget contract
func TestSendMessage_NoConversation(t *testing.T) {
	backend := newFakeBackend()
	s := NewSession(backend, "V1")
	defer s.Close()
	s.LoadConversation(context.Background())

	if err := s.SendMessage(context.Background(), "Hello"); err != nil {
		t.Fatalf("Expected no-op, got error: %v", err)
	}
	if len(s.Messages()) != 0 {
		t.Errorf("Expected empty list, got %d entries", len(s.Messages()))
	}
}

// TestRealtime_AdminMessageAppended delivers an admin insert event
func TestRealtime_AdminMessageAppended(t *testing.T) {
	backend := newFakeBackend()
	s := NewSession(backend, "V1")
	defer s.Close()
	if err := s.StartConversation(context.Background(), "Ann", ""); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	conv, _ := s.Conversation()
	sub := backend.lastSub(t)

	sub.deliver(model.Message{
		ID:             "msg-admin-1",
		ConversationID: conv.ID,
		SenderType:     model.SenderAdmin,
		Message:        "How can I help?",
		CreatedAt:      time.Now(),
	})

	waitFor(t, func() bool {
		for _, e := range s.Messages() {
			if e.ID == "msg-admin-1" {
				return true
			}
		}
		return false
	})
}

// TestRealtime_DuplicateIgnored redelivers a message id already in the
// list and expects no growth
func TestRealtime_DuplicateIgnored(t *testing.T) {
	backend := newFakeBackend()
	s := NewSession(backend, "V1")
	defer s.Close()
	if err := s.StartConversation(context.Background(), "Ann", ""); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	conv, _ := s.Conversation()
	sub := backend.lastSub(t)

	// The welcome message is already in the list; redeliver it.
	welcomeID := s.Messages()[0].ID
	sub.deliver(model.Message{
		ID:             welcomeID,
		ConversationID: conv.ID,
		SenderType:     model.SenderAdmin,
		Message:        "duplicate",
		CreatedAt:      time.Now(),
	})
	// A fresh admin message after it proves the duplicate was processed.
	sub.deliver(model.Message{
		ID:             "msg-after-dup",
		ConversationID: conv.ID,
		SenderType:     model.SenderAdmin,
		Message:        "fresh",
		CreatedAt:      time.Now(),
	})
	waitFor(t, func() bool {
		for _, e := range s.Messages() {
			if e.ID == "msg-after-dup" {
				return true
			}
		}
		return false
	})

	count := 0
	for _, e := range s.Messages() {
		if e.ID == welcomeID {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected one entry with id %s, got %d", welcomeID, count)
	}
}

// TestRealtime_VisitorEventIgnored drops visitor events regardless of
// id novelty
func TestRealtime_VisitorEventIgnored(t *testing.T) {
	backend := newFakeBackend()
	s := NewSession(backend, "V1")
	defer s.Close()
	if err := s.StartConversation(context.Background(), "Ann", ""); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	conv, _ := s.Conversation()
	sub := backend.lastSub(t)

	sub.deliver(model.Message{
		ID:             "msg-visitor-echo",
		ConversationID: conv.ID,
		SenderType:     model.SenderVisitor,
		Message:        "echo",
		CreatedAt:      time.Now(),
	})
	sub.deliver(model.Message{
		ID:             "msg-after-echo",
		ConversationID: conv.ID,
		SenderType:     model.SenderAdmin,
		Message:        "fresh",
		CreatedAt:      time.Now(),
	})
	waitFor(t, func() bool {
		for _, e := range s.Messages() {
			if e.ID == "msg-after-echo" {
				return true
			}
		}
		return false
	})

	for _, e := range s.Messages() {
		if e.ID == "msg-visitor-echo" {
			t.Error("Visitor event must never enter the list via realtime")
		}
	}
}

// TestHistory_SortedByCreatedAt loads history returned out of order and
// expects ascending created_at
func TestHistory_SortedByCreatedAt(t *testing.T) {
	backend := newFakeBackend()
	conv, _ := backend.CreateConversation(context.Background(), "V1", "Ann", "")
	base := time.Now()
	backend.mu.Lock()
	backend.messages[conv.ID] = []model.Message{
		{ID: "m3", ConversationID: conv.ID, SenderType: model.SenderAdmin, Message: "third", CreatedAt: base.Add(3 * time.Second)},
		{ID: "m1", ConversationID: conv.ID, SenderType: model.SenderAdmin, Message: "first", CreatedAt: base.Add(1 * time.Second)},
		{ID: "m2", ConversationID: conv.ID, SenderType: model.SenderVisitor, Message: "second", CreatedAt: base.Add(2 * time.Second)},
	}
	backend.mu.Unlock()

	s := NewSession(backend, "V1")
	defer s.Close()
	if err := s.LoadConversation(context.Background()); err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, msgs[i].ID)
		}
	}
}

// TestClose_ReleasesSubscription must tear the channel down
// synchronously
func TestClose_ReleasesSubscription(t *testing.T) {
	backend := newFakeBackend()
	s := NewSession(backend, "V1")
	if err := s.StartConversation(context.Background(), "Ann", ""); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	sub := backend.lastSub(t)

	s.Close()
	if !sub.isClosed() {
		t.Error("Expected subscription to be closed by Close")
	}
	if err := s.SendMessage(context.Background(), "late"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
}

// TestSubscriptionError_Observable records the failure but keeps the
// history usable
func TestSubscriptionError_Observable(t *testing.T) {
	backend := newFakeBackend()
	conv, _ := backend.CreateConversation(context.Background(), "V1", "Ann", "")
	backend.CreateMessage(context.Background(), conv.ID, model.SenderAdmin, "welcome")
	backend.subscribeErr = errors.New("channel error")

	s := NewSession(backend, "V1")
	defer s.Close()
	if err := s.LoadConversation(context.Background()); err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}

	if s.State() != StateReady {
		t.Errorf("Expected StateReady despite subscription failure, got %v", s.State())
	}
	if len(s.Messages()) != 1 {
		t.Errorf("Expected history to load, got %d messages", len(s.Messages()))
	}
	if s.Err() == nil {
		t.Error("Expected the subscription error to be observable")
	}
}
