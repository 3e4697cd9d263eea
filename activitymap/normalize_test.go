package activitymap_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	userID := uuid.New()
	tenantID := uuid.New()
	event := auth.ActivityEvent{
		Type:       auth.ActivityLogin,
		Outcome:    auth.OutcomeSuccess,
		UserID:     userID,
		TenantID:   tenantID,
		Device:     auth.DeviceMeta{UserAgent: "cli/1.0", IP: "10.0.0.1"},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != userID.String() {
		t.Fatalf("expected actor_id %s, got %q", userID, out.ActorID)
	}
	if out.Verb != string(auth.ActivityLogin) {
		t.Fatalf("expected verb %q, got %q", auth.ActivityLogin, out.Verb)
	}
	if out.ObjectType != "identity" {
		t.Fatalf("expected object_type identity, got %q", out.ObjectType)
	}
	if out.ObjectID != userID.String() {
		t.Fatalf("expected object_id %s, got %q", userID, out.ObjectID)
	}
	if out.Channel != "auth" {
		t.Fatalf("expected channel auth, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata[activitymap.MetadataKeyOutcome] != "success" {
		t.Fatalf("expected outcome success, got %#v", out.Metadata[activitymap.MetadataKeyOutcome])
	}
	if out.Metadata[activitymap.MetadataKeyTenantID] != tenantID.String() {
		t.Fatalf("expected tenant_id %s, got %#v", tenantID, out.Metadata[activitymap.MetadataKeyTenantID])
	}
	if out.Metadata[activitymap.MetadataKeyUserAgent] != "cli/1.0" {
		t.Fatalf("expected user_agent cli/1.0, got %#v", out.Metadata[activitymap.MetadataKeyUserAgent])
	}
	if _, ok := out.Metadata[activitymap.MetadataKeyReason]; ok {
		t.Fatalf("expected no reason on success, got %+v", out.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	event := auth.ActivityEvent{
		Type:     auth.ActivityLogin,
		Outcome:  auth.OutcomeFailure,
		TenantID: tenantID,
		Reason:   auth.TextCodeInvalidCreds,
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType("tenant"),
		activitymap.WithObjectIDResolver(func(e auth.ActivityEvent) string {
			return e.TenantID.String()
		}),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "tenant" {
		t.Fatalf("expected object_type tenant, got %q", out.ObjectType)
	}
	if out.ObjectID != tenantID.String() {
		t.Fatalf("expected object_id %s, got %q", tenantID, out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyReason] != auth.TextCodeInvalidCreds {
		t.Fatalf("expected reason %q, got %#v", auth.TextCodeInvalidCreds, out.Metadata[activitymap.MetadataKeyReason])
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizeActorFallback(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	tests := []struct {
		name   string
		event  auth.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses user id when present",
			event:  auth.ActivityEvent{UserID: userID},
			expect: userID.String(),
		},
		{
			name:   "uses default fallback for anonymous events",
			event:  auth.ActivityEvent{},
			expect: "anonymous",
		},
		{
			name:   "uses configured fallback",
			event:  auth.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("operator")},
			expect: "operator",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}

type recordingLogger struct {
	msgs []string
	args [][]any
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Info(msg string, args ...any) {
	l.msgs = append(l.msgs, msg)
	l.args = append(l.args, args)
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}
	sink := activitymap.LogSink(logger)

	err := sink.Record(context.Background(), auth.ActivityEvent{
		Type:    auth.ActivityLogout,
		Outcome: auth.OutcomeFailure,
		Reason:  auth.TextCodeSessionNotFound,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(logger.msgs) != 1 || logger.msgs[0] != "activity" {
		t.Fatalf("expected one activity log line, got %v", logger.msgs)
	}

	fields := map[string]any{}
	args := logger.args[0]
	for i := 0; i+1 < len(args); i += 2 {
		fields[args[i].(string)] = args[i+1]
	}
	if fields["verb"] != "logout" {
		t.Fatalf("expected verb logout, got %#v", fields["verb"])
	}
	if fields["actor_id"] != "anonymous" {
		t.Fatalf("expected actor_id anonymous, got %#v", fields["actor_id"])
	}
	if fields[activitymap.MetadataKeyReason] != auth.TextCodeSessionNotFound {
		t.Fatalf("expected reason %q, got %#v", auth.TextCodeSessionNotFound, fields[activitymap.MetadataKeyReason])
	}
}
