package otp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingGateway captures sent messages in place of a real SMS provider.
type recordingGateway struct {
	mu       sync.Mutex
	messages []string
	fail     bool
}

func (g *recordingGateway) Send(_ context.Context, phone, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errors.New("gateway down")
	}
	g.messages = append(g.messages, body)
	return nil
}

func (g *recordingGateway) last(t *testing.T) string {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.messages) == 0 {
		t.Fatal("no messages sent")
	}
	return g.messages[len(g.messages)-1]
}

func newTestOTP(t *testing.T, at time.Time) (*Service, *MemoryStore, *recordingGateway, *time.Time) {
	t.Helper()
	current := at
	clock := func() time.Time { return current }
	store := NewMemoryStore().WithClock(clock)
	limiter := NewMemoryLimiter().WithClock(clock)
	gw := &recordingGateway{}
	svc := NewService(store, limiter, gw).WithClock(clock)
	return svc, store, gw, &current
}

func TestSendStoresCodeAndDelivers(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, store, gw, _ := newTestOTP(t, t0)
	ctx := context.Background()

	ttl, err := svc.Send(ctx, "+15551234567", PurposeLogin)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ttl != 10*time.Minute {
		t.Fatalf("login ttl = %v, want 10m", ttl)
	}

	entry, ok, err := store.Get(ctx, Key("+15551234567", PurposeLogin))
	if err != nil || !ok {
		t.Fatalf("entry missing: ok=%v err=%v", ok, err)
	}
	if len(entry.Code) != 6 {
		t.Fatalf("stored code %q", entry.Code)
	}
	// the delivered SMS carries the stored code
	if msg := gw.last(t); !containsCode(msg, entry.Code) {
		t.Fatalf("sms %q does not carry code %q", msg, entry.Code)
	}
}

func TestSendUsesShorterExpiryForTwoFactor(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, _, _, _ := newTestOTP(t, t0)

	ttl, err := svc.Send(context.Background(), "+15551234567", Purpose2FA)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ttl != 5*time.Minute {
		t.Fatalf("2fa ttl = %v, want 5m", ttl)
	}
}

func TestSendGatewayFailureSurfaces(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, _, gw, _ := newTestOTP(t, t0)
	gw.fail = true

	if _, err := svc.Send(context.Background(), "+15551234567", PurposeLogin); err == nil {
		t.Fatal("expected gateway failure to surface")
	}
}

func TestVerifyLifecycle(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, store, _, _ := newTestOTP(t, t0)
	ctx := context.Background()

	// nothing pending
	res, err := svc.Verify(ctx, "+15551234567", "123456", PurposeLogin)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Outcome != VerifyNotFound {
		t.Fatalf("outcome = %s, want not_found", res.Outcome)
	}

	if _, err := svc.Send(ctx, "+15551234567", PurposeLogin); err != nil {
		t.Fatalf("send: %v", err)
	}
	entry, _, _ := store.Get(ctx, Key("+15551234567", PurposeLogin))

	// wrong code decrements the budget
	res, err = svc.Verify(ctx, "+15551234567", "000000", PurposeLogin)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Outcome != VerifyInvalidCode || res.AttemptsRemaining != 3 {
		t.Fatalf("got %+v, want invalid_code with 3 remaining", res)
	}

	// right code consumes the entry
	res, err = svc.Verify(ctx, "+15551234567", entry.Code, PurposeLogin)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Outcome != VerifyOK {
		t.Fatalf("outcome = %s, want ok", res.Outcome)
	}
	// consumed: a replay is not found
	res, _ = svc.Verify(ctx, "+15551234567", entry.Code, PurposeLogin)
	if res.Outcome != VerifyNotFound {
		t.Fatalf("replay outcome = %s, want not_found", res.Outcome)
	}
}

func TestVerifyFourthAttemptRateLimitedEvenIfCorrect(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, store, _, _ := newTestOTP(t, t0)
	ctx := context.Background()

	if _, err := svc.Send(ctx, "+15551234567", PurposeLogin); err != nil {
		t.Fatalf("send: %v", err)
	}
	entry, _, _ := store.Get(ctx, Key("+15551234567", PurposeLogin))

	for i, wantRemaining := range []int{3, 2, 1} {
		res, err := svc.Verify(ctx, "+15551234567", "000000", PurposeLogin)
		if err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
		if res.Outcome != VerifyInvalidCode || res.AttemptsRemaining != wantRemaining {
			t.Fatalf("attempt %d: got %+v, want invalid_code with %d remaining", i+1, res, wantRemaining)
		}
	}

	// the 4th attempt is rejected and the entry deleted, correct code or not
	res, err := svc.Verify(ctx, "+15551234567", entry.Code, PurposeLogin)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Outcome != VerifyRateLimited {
		t.Fatalf("outcome = %s, want rate_limited", res.Outcome)
	}
	if _, ok, _ := store.Get(ctx, Key("+15551234567", PurposeLogin)); ok {
		t.Fatal("entry must be deleted after rate limiting")
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, store, _, current := newTestOTP(t, t0)
	ctx := context.Background()

	if _, err := svc.Send(ctx, "+15551234567", PurposeLogin); err != nil {
		t.Fatalf("send: %v", err)
	}
	entry, _, _ := store.Get(ctx, Key("+15551234567", PurposeLogin))

	// just past logical expiry, inside the storage grace window
	*current = t0.Add(10*time.Minute + 30*time.Second)
	res, err := svc.Verify(ctx, "+15551234567", entry.Code, PurposeLogin)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Outcome != VerifyExpired {
		t.Fatalf("outcome = %s, want expired", res.Outcome)
	}
}

func TestSendRateLimitWindow(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, _, _, current := newTestOTP(t, t0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		limited, err := svc.RateLimited(ctx, "+15551234567")
		if err != nil {
			t.Fatalf("rate limited: %v", err)
		}
		if limited {
			t.Fatalf("send %d unexpectedly limited", i+1)
		}
	}
	limited, err := svc.RateLimited(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("rate limited: %v", err)
	}
	if !limited {
		t.Fatal("6th send inside the window must be limited")
	}

	// a different number has its own budget
	limited, _ = svc.RateLimited(ctx, "+15559876543")
	if limited {
		t.Fatal("independent numbers share a budget")
	}

	// the window resets
	*current = t0.Add(61 * time.Minute)
	limited, _ = svc.RateLimited(ctx, "+15551234567")
	if limited {
		t.Fatal("budget must reset after the window")
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := t0
	store := NewMemoryStore().WithClock(func() time.Time { return current })
	ctx := context.Background()

	_ = store.Put(ctx, "a", Entry{Code: "111111"}, time.Minute)
	_ = store.Put(ctx, "b", Entry{Code: "222222"}, time.Hour)

	current = t0.Add(2 * time.Minute)
	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("swept %d entries, want 1", removed)
	}
	if _, ok, _ := store.Get(ctx, "b"); !ok {
		t.Fatal("live entry swept")
	}
}

func containsCode(msg, code string) bool {
	return strings.Contains(msg, code)
}
