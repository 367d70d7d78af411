package otp

import (
	"context"
	"time"

	"medcare.org/internal/obs"
)

const (
	maxVerifyAttempts = 3

	sendMaxAttempts = 5
	sendWindow      = time.Hour
)

// VerifyOutcome is the state-machine result of a verification attempt.
type VerifyOutcome int

const (
	VerifyOK VerifyOutcome = iota
	VerifyNotFound
	VerifyExpired
	VerifyRateLimited
	VerifyInvalidCode
)

func (o VerifyOutcome) String() string {
	switch o {
	case VerifyOK:
		return "ok"
	case VerifyNotFound:
		return "not_found"
	case VerifyExpired:
		return "expired"
	case VerifyRateLimited:
		return "rate_limited"
	default:
		return "invalid_code"
	}
}

// VerifyResult carries the outcome and, for invalid codes, how many attempts
// remain. Attempt-count feedback is a deliberate UX trade-off.
type VerifyResult struct {
	Outcome           VerifyOutcome
	AttemptsRemaining int
}

// Service composes generation, delivery, storage and rate limiting.
type Service struct {
	store   Store
	limiter Limiter
	gateway Gateway
	now     func() time.Time
}

func NewService(store Store, limiter Limiter, gateway Gateway) *Service {
	return &Service{
		store:   store,
		limiter: limiter,
		gateway: gateway,
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// RateLimited reports whether further sends to phone are blocked. Each call
// counts as one send attempt against the window.
func (s *Service) RateLimited(ctx context.Context, phone string) (bool, error) {
	allowed, err := s.limiter.Allow(ctx, phone, sendMaxAttempts, sendWindow)
	if err != nil {
		return false, err
	}
	return !allowed, nil
}

// Send generates a code, stores it under (phone, purpose) and delivers it by
// SMS. Returns the code lifetime on success.
func (s *Service) Send(ctx context.Context, phone string, purpose Purpose) (time.Duration, error) {
	code, err := Generate()
	if err != nil {
		return 0, err
	}
	ttl := ExpiryFor(purpose)
	entry := Entry{Code: code, ExpiresAt: s.now().Add(ttl)}
	// Store slightly past the logical expiry so a verify attempt just after
	// expiry still reports EXPIRED instead of NOT_FOUND.
	if err := s.store.Put(ctx, Key(phone, purpose), entry, ttl+time.Minute); err != nil {
		return 0, err
	}

	if err := s.gateway.Send(ctx, phone, messageFor(code, purpose)); err != nil {
		obs.Error("otp send failed", map[string]any{
			"phone":   MaskPhone(phone),
			"purpose": string(purpose),
			"error":   err.Error(),
		})
		obs.ObserveOTPSend(string(purpose), "failure")
		return 0, err
	}

	obs.Info("otp sent", map[string]any{
		"phone":   MaskPhone(phone),
		"purpose": string(purpose),
	})
	obs.ObserveOTPSend(string(purpose), "success")
	return ttl, nil
}

// Verify runs the lifecycle state machine: NOT_FOUND when absent; EXPIRED
// (and delete) past expiry; RATE_LIMITED (and delete) beyond the attempt
// budget even when the code would have matched; INVALID_CODE with remaining
// attempts on mismatch; delete and OK on match.
func (s *Service) Verify(ctx context.Context, phone string, code string, purpose Purpose) (VerifyResult, error) {
	key := Key(phone, purpose)

	entry, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return VerifyResult{}, err
	}
	if !ok {
		obs.ObserveOTPVerify(string(purpose), VerifyNotFound.String())
		return VerifyResult{Outcome: VerifyNotFound}, nil
	}
	if s.now().After(entry.ExpiresAt) {
		_ = s.store.Delete(ctx, key)
		obs.ObserveOTPVerify(string(purpose), VerifyExpired.String())
		return VerifyResult{Outcome: VerifyExpired}, nil
	}

	attempts, err := s.store.IncrementAttempts(ctx, key)
	if err != nil {
		return VerifyResult{}, err
	}
	if attempts > maxVerifyAttempts {
		_ = s.store.Delete(ctx, key)
		obs.ObserveOTPVerify(string(purpose), VerifyRateLimited.String())
		return VerifyResult{Outcome: VerifyRateLimited}, nil
	}
	if entry.Code != code {
		obs.ObserveOTPVerify(string(purpose), VerifyInvalidCode.String())
		return VerifyResult{
			Outcome:           VerifyInvalidCode,
			AttemptsRemaining: maxVerifyAttempts + 1 - attempts,
		}, nil
	}

	_ = s.store.Delete(ctx, key)
	obs.Info("otp verified", map[string]any{
		"phone":   MaskPhone(phone),
		"purpose": string(purpose),
	})
	obs.ObserveOTPVerify(string(purpose), VerifyOK.String())
	return VerifyResult{Outcome: VerifyOK}, nil
}

// SendNotification delivers a plain notification SMS through the same
// gateway.
func (s *Service) SendNotification(ctx context.Context, phone, message string) error {
	if err := s.gateway.Send(ctx, phone, message); err != nil {
		obs.Error("notification sms failed", map[string]any{
			"phone": MaskPhone(phone),
			"error": err.Error(),
		})
		return err
	}
	obs.Info("notification sms sent", map[string]any{"phone": MaskPhone(phone)})
	return nil
}
