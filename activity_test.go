package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-tenant-auth"
)

type MockActivityStore struct {
	mock.Mock
}

func (m *MockActivityStore) Insert(ctx context.Context, entry *auth.ActivityLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func TestStoreSink(t *testing.T) {
	store := new(MockActivityStore)
	userID := uuid.New()
	occurred := time.Now()

	store.On("Insert", mock.Anything, mock.MatchedBy(func(e *auth.ActivityLog) bool {
		return e.Type == auth.ActivityLogin &&
			e.Outcome == auth.OutcomeFailure &&
			e.UserID != nil && *e.UserID == userID &&
			e.TenantID == nil &&
			e.Error == auth.TextCodeInvalidCreds &&
			e.IP == "10.0.0.1" &&
			e.CreatedAt.Equal(occurred)
	})).Return(nil).Once()

	err := auth.StoreSink(store).Record(context.Background(), auth.ActivityEvent{
		Type:       auth.ActivityLogin,
		Outcome:    auth.OutcomeFailure,
		UserID:     userID,
		Reason:     auth.TextCodeInvalidCreds,
		Device:     auth.DeviceMeta{IP: "10.0.0.1"},
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestActivityDispatcher_DeliversAndDrains(t *testing.T) {
	sink := &capturingSink{}
	d := auth.NewActivityDispatcher(sink, 16, nil)
	d.Start()

	for i := 0; i < 10; i++ {
		assert.True(t, d.Dispatch(auth.ActivityEvent{Type: auth.ActivityRefresh}))
	}

	require.NoError(t, d.Stop(context.Background()))
	assert.Len(t, sink.Events(), 10)
	assert.Zero(t, d.Dropped())

	assert.False(t, d.Dispatch(auth.ActivityEvent{Type: auth.ActivityRefresh}), "dispatch after stop is dropped")
	assert.EqualValues(t, 1, d.Dropped())
}

func TestActivityDispatcher_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	sink := auth.ActivitySinkFunc(func(ctx context.Context, ev auth.ActivityEvent) error {
		<-release
		return nil
	})

	drops := 0
	d := auth.NewActivityDispatcher(sink, 1, nil).OnDrop(func() { drops++ })

	// without a worker the queue holds exactly one event
	assert.True(t, d.Dispatch(auth.ActivityEvent{}))
	assert.False(t, d.Dispatch(auth.ActivityEvent{}))
	assert.False(t, d.Dispatch(auth.ActivityEvent{}))

	assert.EqualValues(t, 2, d.Dropped())
	assert.Equal(t, 2, drops)

	close(release)
	require.NoError(t, d.Stop(context.Background()))
}

func TestActivityDispatcher_SinkErrorsAreSwallowed(t *testing.T) {
	calls := 0
	sink := auth.ActivitySinkFunc(func(ctx context.Context, ev auth.ActivityEvent) error {
		calls++
		return errors.New("db down")
	})
	d := auth.NewActivityDispatcher(sink, 4, nil)
	d.Start()

	d.Dispatch(auth.ActivityEvent{})
	d.Dispatch(auth.ActivityEvent{})
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestActivityDispatcher_StopHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	sink := auth.ActivitySinkFunc(func(ctx context.Context, ev auth.ActivityEvent) error {
		<-release
		return nil
	})
	d := auth.NewActivityDispatcher(sink, 4, nil)
	d.Start()
	d.Dispatch(auth.ActivityEvent{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)
}

func TestMultiSink_RunsEverySink(t *testing.T) {
	first := &capturingSink{}
	second := &capturingSink{}
	boom := errors.New("boom")

	sink := auth.MultiSink(
		first,
		auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error { return boom }),
		nil,
		second,
	)

	err := sink.Record(context.Background(), auth.ActivityEvent{Type: auth.ActivityRefresh})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.Events(), 1)
	assert.Len(t, second.Events(), 1)
}
