package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(ratePerMinute, burst int) (*publishLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := newPublishLimiter(ratePerMinute, burst)
	l.now = clock.now
	return l, clock
}

func TestPublishLimiterDisabled(t *testing.T) {
	if l := newPublishLimiter(0, 10); l != nil {
		t.Fatal("expected nil limiter for a zero rate")
	}
}

func TestPublishLimiterAllowsBurst(t *testing.T) {
	l, _ := newTestLimiter(60, 10)
	for i := 0; i < 10; i++ {
		if ok, _ := l.allow("1.2.3.4"); !ok {
			t.Fatalf("request %d should be allowed (within burst)", i)
		}
	}
	ok, wait := l.allow("1.2.3.4")
	if ok {
		t.Fatal("request after burst should be blocked")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("unexpected wait %v", wait)
	}
}

func TestPublishLimiterRefills(t *testing.T) {
	l, clock := newTestLimiter(60, 2) // 1/sec
	l.allow("1.2.3.4")
	l.allow("1.2.3.4")
	if ok, _ := l.allow("1.2.3.4"); ok {
		t.Fatal("should be blocked after burst")
	}
	clock.advance(time.Second)
	if ok, _ := l.allow("1.2.3.4"); !ok {
		t.Fatal("should be allowed after refill")
	}
}

func TestPublishLimiterPerIPIsolation(t *testing.T) {
	l, _ := newTestLimiter(60, 2)
	l.allow("1.1.1.1")
	l.allow("1.1.1.1")
	if ok, _ := l.allow("1.1.1.1"); ok {
		t.Fatal("IP A should be blocked")
	}
	if ok, _ := l.allow("2.2.2.2"); !ok {
		t.Fatal("IP B should be allowed")
	}
}

func TestPublishLimiterSweepsIdleClients(t *testing.T) {
	l, clock := newTestLimiter(60, 2)
	l.allow("1.1.1.1")
	l.allow("2.2.2.2")
	if l.size() != 2 {
		t.Fatalf("expected 2 tracked clients, got %d", l.size())
	}

	clock.advance(5 * time.Second)
	l.allow("3.3.3.3")
	if l.size() != 1 {
		t.Errorf("expected idle clients swept, %d left", l.size())
	}
}

func TestPublishRateLimitOnlyCoversPublish(t *testing.T) {
	env := newTestEnv(t, Config{PublishRatePerMinute: 1, PublishBurst: 1, LongPollTimeout: 20 * time.Millisecond})

	put := func() *http.Response {
		req, _ := http.NewRequest(http.MethodPut, env.server.URL+"/limited", strings.NewReader("x"))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PUT: %v", err)
		}
		resp.Body.Close()
		return resp
	}

	if resp := put(); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first publish: expected 202, got %d", resp.StatusCode)
	}
	resp := put()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second publish: expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// polling is not limited
	if status, _ := poll(t, env.server.URL+"/limited"); status != http.StatusNoContent {
		t.Errorf("poll: expected 204, got %d", status)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	if got := clientIP(r); got != "10.1.2.3" {
		t.Errorf("clientIP = %q", got)
	}
	r.RemoteAddr = "203.0.113.9"
	if got := clientIP(r); got != "203.0.113.9" {
		t.Errorf("clientIP without port = %q", got)
	}
}
