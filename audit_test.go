package siteauth

import (
	"context"
	"testing"
	"time"
)

func newAuditedEnv(t *testing.T) (*testEnv, *ChannelSink) {
	t.Helper()
	sink := NewChannelSink(64)
	cfg := testConfig()
	cfg.Audit.Enabled = true
	_, rdb := newTestRedis(t)
	env := &testEnv{
		store:    newMemStore(),
		dir:      newMemDirectory("company-1"),
		notifier: &recordingNotifier{},
		clock:    newTestClock(),
	}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(env.store).
		WithCompanyDirectory(env.dir).
		WithNotifier(env.notifier).
		WithAuditSink(sink).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env, sink
}

// nextEvent waits for the first event of eventType, skipping others.
func nextEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s audit event", eventType)
		}
	}
}

func TestAuditLoginEvents(t *testing.T) {
	env, sink := newAuditedEnv(t)
	acc := env.registerVerified(t, "ada@example.com", goodPassword, RoleAdmin)
	ctx := WithRequestID(WithClientIP(context.Background(), "203.0.113.7"), "req-1")

	_, err := env.engine.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong-password"})
	mustErrIs(t, err, ErrInvalidCredentials)
	failure := nextEvent(t, sink, auditEventLoginFailure)
	if failure.Success || failure.Error != "invalid_credentials" || failure.UserID != acc.ID {
		t.Fatalf("unexpected failure event %+v", failure)
	}

	if _, err := env.engine.Login(ctx, LoginInput{Email: "ada@example.com", Password: goodPassword}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	success := nextEvent(t, sink, auditEventLoginSuccess)
	if !success.Success || success.IP != "203.0.113.7" || success.RequestID != "req-1" || success.Role != string(RoleAdmin) {
		t.Fatalf("unexpected success event %+v", success)
	}
	if !success.Timestamp.Equal(env.clock.Now()) {
		t.Fatalf("event timestamp %v does not follow the engine clock", success.Timestamp)
	}
}

func TestAuditErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrLockoutTriggered, "lockout_triggered"},
		{ErrAccountLocked, "account_locked"},
		{ErrTokenRevoked, "token_revoked"},
		{ErrOTPNotFound, "otp_invalid"},
		{ErrOTPInvalid, "otp_invalid"},
		{ErrForbiddenRole, "forbidden"},
		{ErrStoreUnavailable, "unavailable"},
	}
	for _, tc := range tests {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Errorf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
