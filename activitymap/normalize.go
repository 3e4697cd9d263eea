package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	auth "github.com/goliatone/go-tenant-auth"
)

const (
	// MetadataKeyOutcome stores the success or failure of the flow.
	MetadataKeyOutcome = "outcome"

	// MetadataKeyReason stores the error code of a failed flow.
	MetadataKeyReason = "reason"

	// MetadataKeyTenantID stores the tenant the flow ran against.
	MetadataKeyTenantID = "tenant_id"

	MetadataKeyUserAgent = "user_agent"
	MetadataKeyIP        = "ip"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "identity"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(auth.ActivityEvent) string
}

// Normalize converts an auth.ActivityEvent into a generic normalized shape.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(idString(event.UserID), options.actorFallback)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.Type),
		ObjectType: options.objectType,
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
func WithObjectIDResolver(resolver func(auth.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used for anonymous events.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// LogSink returns an auth.ActivitySink that writes each normalized event
// through logger at info level.
func LogSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	if logger == nil {
		logger = auth.NewNopLogger()
	}
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		n := Normalize(event, opts...)
		args := []any{
			"actor_id", n.ActorID,
			"verb", n.Verb,
			"channel", n.Channel,
			"object_type", n.ObjectType,
			"object_id", n.ObjectID,
		}
		for _, key := range metadataKeys {
			if v, ok := n.Metadata[key]; ok {
				args = append(args, key, v)
			}
		}
		logger.Info("activity", args...)
		return nil
	})
}

var metadataKeys = []string{
	MetadataKeyOutcome,
	MetadataKeyReason,
	MetadataKeyTenantID,
	MetadataKeyUserAgent,
	MetadataKeyIP,
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func resolveObjectID(event auth.ActivityEvent, resolver func(auth.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return idString(event.UserID)
}

func normalizeMetadata(event auth.ActivityEvent) map[string]any {
	metadata := map[string]any{
		MetadataKeyOutcome: string(event.Outcome),
	}
	if event.Reason != "" {
		metadata[MetadataKeyReason] = event.Reason
	}
	if tid := idString(event.TenantID); tid != "" {
		metadata[MetadataKeyTenantID] = tid
	}
	if ua := strings.TrimSpace(event.Device.UserAgent); ua != "" {
		metadata[MetadataKeyUserAgent] = ua
	}
	if ip := strings.TrimSpace(event.Device.IP); ip != "" {
		metadata[MetadataKeyIP] = ip
	}
	return metadata
}

func idString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
