package subscription

import (
	stderrors "errors"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DeBrosOfficial/firehose/pkg/errors"
)

func TestQueueName(t *testing.T) {
	tests := []struct {
		id, topic, want string
	}{
		{"client-1", "/t", "client-1@/t"},
		{"42", "/test/channel", "42@/test/channel"},
		{"a@b", "c", "a@b@c"},
	}
	for _, tt := range tests {
		if got := QueueName(tt.id, tt.topic); got != tt.want {
			t.Errorf("QueueName(%q, %q) = %q, want %q", tt.id, tt.topic, got, tt.want)
		}
		if QueueName(tt.id, tt.topic) != QueueName(tt.id, tt.topic) {
			t.Errorf("QueueName(%q, %q) is not stable", tt.id, tt.topic)
		}
	}
}

func TestNewSubscriberIDUnique(t *testing.T) {
	digits := regexp.MustCompile(`^[0-9]+$`)
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := NewSubscriberID()
		if !digits.MatchString(id) {
			t.Fatalf("id %q is not a decimal string", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q after %d ids", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestManagerNewGeneratesOrKeepsID(t *testing.T) {
	m := NewManager(newRecordingConn(), WithIDGenerator(func() string { return "generated" }))

	s, err := m.New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.SubscriberID() != "generated" {
		t.Errorf("expected generated id, got %q", s.SubscriberID())
	}

	s, err = m.New("client-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.SubscriberID() != "client-1" {
		t.Errorf("expected client-1, got %q", s.SubscriberID())
	}
}

func TestDefaultTTL(t *testing.T) {
	m := NewManager(newRecordingConn())
	s, _ := m.New("")
	if s.TTL() != 15000*time.Millisecond {
		t.Errorf("default TTL = %s, want 15s", s.TTL())
	}

	m = NewManager(newRecordingConn(), WithDefaultTTL(3*time.Second))
	s, _ = m.New("")
	if s.TTL() != 3*time.Second {
		t.Errorf("configured TTL = %s, want 3s", s.TTL())
	}
}

func TestTTLReachesQueueDeclaration(t *testing.T) {
	conn := newRecordingConn()
	m := NewManager(conn)
	s, _ := m.New("id")
	s.SetTTL(5000 * time.Millisecond)

	if err := s.Subscribe("/ttl", func([]byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := conn.queueOpts["id@/ttl"].Expires; got != 5*time.Second {
		t.Errorf("queue declared with expiry %s, want 5s", got)
	}

	s.SetTTL(time.Minute)
	if s.TTL() != 5*time.Second {
		t.Errorf("SetTTL after Subscribe changed TTL to %s", s.TTL())
	}
}

func TestSetTTLIgnoresNonPositive(t *testing.T) {
	conn := newRecordingConn()
	m := NewManager(conn, WithDefaultTTL(4*time.Second))
	s, _ := m.New("keep")

	for _, ttl := range []time.Duration{0, -time.Second} {
		s.SetTTL(ttl)
		if s.TTL() != 4*time.Second {
			t.Fatalf("SetTTL(%s) changed TTL to %s", ttl, s.TTL())
		}
	}

	if err := s.Subscribe("/ttl", func([]byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := conn.queueOpts["keep@/ttl"].Expires; got != 4*time.Second {
		t.Errorf("queue declared with expiry %s, want 4s", got)
	}
}

func TestSubscribeSetupSequence(t *testing.T) {
	conn := newRecordingConn()
	m := NewManager(conn)
	s, _ := m.New("sub")

	if err := s.Subscribe("/news", func([]byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	want := []string{
		"channel prefetch=1",
		"declareBroadcast /news autoDelete=true",
		"declareQueue sub@/news expires=15s",
		"bind /news -> sub@/news",
		"consumer sub@/news tag=sub",
		"consume tag=sub",
	}
	if got := conn.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("events:\n got %v\nwant %v", got, want)
	}
	if s.State() != StateSubscribed || s.Topic() != "/news" {
		t.Errorf("unexpected state %s topic %q", s.State(), s.Topic())
	}
}

func TestCallbackThenAck(t *testing.T) {
	conn := newRecordingConn()
	m := NewManager(conn)
	s, _ := m.New("sub")

	if err := s.Subscribe("/t", func(p []byte) error {
		conn.record("callback %s", p)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := conn.lastConsumer().deliver("m1"); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	events := conn.Events()
	tail := events[len(events)-2:]
	if !reflect.DeepEqual(tail, []string{"callback m1", "ack 1"}) {
		t.Errorf("expected callback then ack, got %v", tail)
	}
	acks := 0
	for _, e := range events {
		if strings.HasPrefix(e, "ack") {
			acks++
		}
	}
	if acks != 1 {
		t.Errorf("expected exactly one ack, got %d", acks)
	}
}

func TestNoAckOnCallbackError(t *testing.T) {
	conn := newRecordingConn()
	m := NewManager(conn)
	s, _ := m.New("sub")

	cause := stderrors.New("client went away")
	if err := s.Subscribe("/t", func([]byte) error { return cause }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	err := conn.lastConsumer().deliver("m1")
	if !errors.IsCallback(err) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if !stderrors.Is(err, cause) {
		t.Errorf("callback error does not wrap the cause: %v", err)
	}
	for _, e := range conn.Events() {
		if strings.HasPrefix(e, "ack") {
			t.Fatalf("message acknowledged after failed callback: %v", conn.Events())
		}
	}
}

func TestNoCallbackAfterUnsubscribe(t *testing.T) {
	conn := newRecordingConn()
	m := NewManager(conn)
	s, _ := m.New("sub")

	calls := 0
	if err := s.Subscribe("/t", func([]byte) error { calls++; return nil }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := s.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	err := conn.lastConsumer().deliver("late")
	if !stderrors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("expected ErrSubscriptionClosed for late delivery, got %v", err)
	}
	if calls != 0 {
		t.Errorf("callback invoked %d times after Unsubscribe", calls)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	conn := newRecordingConn()
	m := NewManager(conn)
	s, _ := m.New("sub")

	if err := s.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe before Subscribe: %v", err)
	}
	if len(conn.Events()) != 0 {
		t.Fatalf("Unsubscribe before Subscribe touched the broker: %v", conn.Events())
	}

	if err := s.Subscribe("/t", func([]byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := s.Unsubscribe(); err != nil {
		t.Fatalf("first Unsubscribe: %v", err)
	}
	if err := s.Unsubscribe(); err != nil {
		t.Fatalf("second Unsubscribe: %v", err)
	}

	cancels := 0
	for _, e := range conn.Events() {
		if strings.HasPrefix(e, "cancel") {
			cancels++
		}
		if strings.HasPrefix(e, "close channel") {
			t.Errorf("Unsubscribe closed the channel")
		}
	}
	if cancels != 1 {
		t.Errorf("expected one consumer cancel, got %d", cancels)
	}
	if s.State() != StateUnsubscribed {
		t.Errorf("state = %s, want unsubscribed", s.State())
	}
}

func TestDoubleSubscribe(t *testing.T) {
	conn := newRecordingConn()
	m := NewManager(conn)
	s, _ := m.New("sub")
	noop := func([]byte) error { return nil }

	if err := s.Subscribe("/a", noop); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := s.Subscribe("/b", noop); !stderrors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}
	_ = s.Unsubscribe()
	if err := s.Subscribe("/a", noop); !stderrors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("expected ErrSubscriptionClosed, got %v", err)
	}

	opened := 0
	for _, e := range conn.Events() {
		if strings.HasPrefix(e, "channel") {
			opened++
		}
	}
	if opened != 1 {
		t.Errorf("rejected Subscribe calls opened channels: %d opened", opened)
	}
}

func TestSubscribeValidation(t *testing.T) {
	m := NewManager(newRecordingConn())
	s, _ := m.New("sub")

	if err := s.Subscribe("", func([]byte) error { return nil }); !errors.IsValidation(err) {
		t.Errorf("empty topic: expected validation error, got %v", err)
	}
	if err := s.Subscribe("/t", nil); !errors.IsValidation(err) {
		t.Errorf("nil handler: expected validation error, got %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
}

func TestSubscribeChannelOpenFails(t *testing.T) {
	conn := newRecordingConn()
	conn.fail["channel"] = stderrors.New("connection refused")
	m := NewManager(conn)
	s, _ := m.New("sub")

	err := s.Subscribe("/t", func([]byte) error { return nil })
	if !errors.IsConnection(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
}

func TestSubscribeSetupFailureClosesChannel(t *testing.T) {
	for _, op := range []string{"declareBroadcast", "declareQueue", "bind", "consume"} {
		t.Run(op, func(t *testing.T) {
			conn := newRecordingConn()
			cause := errors.NewPreconditionError("queue", "inequivalent arg")
			conn.fail[op] = cause
			m := NewManager(conn)
			s, _ := m.New("sub")

			err := s.Subscribe("/t", func([]byte) error { return nil })
			if !errors.IsPrecondition(err) {
				t.Fatalf("expected the setup error to surface, got %v", err)
			}
			if !conn.channels[0].isClosed() {
				t.Error("channel left open after failed setup")
			}
			if s.State() != StateIdle {
				t.Errorf("state = %s, want idle", s.State())
			}

			delete(conn.fail, op)
			if err := s.Subscribe("/t", func([]byte) error { return nil }); err != nil {
				t.Fatalf("retry after failure: %v", err)
			}
		})
	}
}

func TestCloseWaitsForInflightDelivery(t *testing.T) {
	conn := newRecordingConn()
	m := NewManager(conn)
	s, _ := m.New("sub")

	entered := make(chan struct{})
	release := make(chan struct{})
	if err := s.Subscribe("/t", func([]byte) error {
		close(entered)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = conn.lastConsumer().deliver("slow")
	}()
	<-entered

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a delivery was in progress")
	case <-time.After(50 * time.Millisecond):
	}
	if conn.channels[0].isClosed() {
		t.Fatal("channel closed under an in-flight delivery")
	}

	close(release)
	wg.Wait()
	if err := <-closed; err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := conn.Events()
	if events[len(events)-2] != "ack 1" || events[len(events)-1] != "close channel" {
		t.Errorf("expected ack before channel close, got %v", events)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestCloseBeforeSubscribe(t *testing.T) {
	conn := newRecordingConn()
	m := NewManager(conn)
	s, _ := m.New("sub")

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Subscribe("/t", func([]byte) error { return nil }); !stderrors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("expected ErrSubscriptionClosed, got %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("closed subscription still tracked")
	}
}
