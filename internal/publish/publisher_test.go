package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/internal/sidecar"
	"github.com/pbaity/herald/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInitLogger(t *testing.T) {
	t.Helper()
	settings := models.ApplicationSettings{LogLevel: "error", LogFormat: "text"}
	err := logger.Init(settings, io.Discard)
	require.NoError(t, err, "Failed to initialize logger for test")
}

func ptr[T any](v T) *T { return &v }

func fastRetry() models.RetryPolicy {
	return models.RetryPolicy{MaxRetries: ptr(2), Delay: ptr(0.001), BackoffFactor: ptr(1.0)}
}

func newPublisherFor(url string, settings models.PublishSettings) *Publisher {
	client := sidecar.New(models.SidecarSettings{
		BaseURL: url,
		Timeout: models.Duration{Duration: 2 * time.Second},
	})
	return NewPublisher(client, "pubsub", settings)
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(models.EventTaskCreated, "user-1", map[string]string{"id": "t1"}, "", "chat-api")
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, models.EventTaskCreated, env.EventType)
	assert.Equal(t, "user-1", env.UserID)
	assert.Equal(t, "chat-api", env.Source)
	assert.Equal(t, SpecVersion, env.SpecVersion)
	assert.WithinDuration(t, time.Now().UTC(), env.Timestamp, 5*time.Second)
	require.NoError(t, env.Validate())
}

func TestNewEnvelope_KeepsSuppliedID(t *testing.T) {
	env, err := NewEnvelope(models.EventTaskUpdated, "user-1", map[string]string{}, "fixed-id", "chat-api")
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", env.EventID)
}

func TestPublish_Success(t *testing.T) {
	testInitLogger(t)
	var received models.EventEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/publish/pubsub/task-events", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := newPublisherFor(srv.URL, models.PublishSettings{Source: "chat-api", Retry: fastRetry()})
	env, err := p.Publish(context.Background(), models.TopicTaskEvents, models.EventTaskCreated, "user-1",
		models.TaskPayload{ID: "t1", Title: "write tests"}, "")
	require.NoError(t, err)
	assert.Equal(t, env.EventID, received.EventID)
	assert.Equal(t, models.EventTaskCreated, received.EventType)
	assert.Equal(t, "chat-api", received.Source)
}

func TestPublish_RetriesThenSucceeds(t *testing.T) {
	testInitLogger(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newPublisherFor(srv.URL, models.PublishSettings{Source: "chat-api", Retry: fastRetry()})
	_, err := p.Publish(context.Background(), models.TopicTaskEvents, models.EventTaskUpdated, "user-1",
		models.TaskPayload{ID: "t1"}, "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPublish_ExhaustedRetries(t *testing.T) {
	testInitLogger(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := newPublisherFor(srv.URL, models.PublishSettings{Source: "chat-api", Retry: fastRetry()})
	env, err := p.Publish(context.Background(), models.TopicTaskEvents, models.EventTaskCompleted, "user-1",
		models.TaskPayload{ID: "t1"}, "")
	require.Error(t, err)

	var pubErr *PublishError
	require.True(t, errors.As(err, &pubErr))
	assert.Equal(t, models.TopicTaskEvents, pubErr.Topic)
	assert.Equal(t, env.EventID, pubErr.EventID)
	assert.Equal(t, 3, pubErr.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	// The envelope is still returned so the caller can retry with the same id.
	assert.NotEmpty(t, env.EventID)
}

func TestPublish_SameEventIDOnCallerRetry(t *testing.T) {
	testInitLogger(t)
	var ids []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env models.EventEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		ids = append(ids, env.EventID)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newPublisherFor(srv.URL, models.PublishSettings{Source: "chat-api", Retry: fastRetry()})
	_, err := p.Publish(context.Background(), models.TopicTaskEvents, models.EventTaskUpdated, "user-1",
		models.TaskPayload{ID: "t1"}, "fixed-event-id")
	require.NoError(t, err)
	_, err = p.Publish(context.Background(), models.TopicTaskEvents, models.EventTaskUpdated, "user-1",
		models.TaskPayload{ID: "t1"}, "fixed-event-id")
	require.NoError(t, err)

	require.Len(t, ids, 2)
	assert.Equal(t, "fixed-event-id", ids[0])
	assert.Equal(t, ids[0], ids[1])
}

func TestPublish_DisabledMode(t *testing.T) {
	testInitLogger(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("disabled publisher must not touch the broker")
	}))
	defer srv.Close()

	p := newPublisherFor(srv.URL, models.PublishSettings{Source: "chat-api", Disabled: true})
	env, err := p.Publish(context.Background(), models.TopicReminders, models.EventReminderScheduled, "user-1",
		models.ReminderPayload{TaskID: "t1", TaskTitle: "x", RemindAt: time.Now().UTC()}, "")
	require.NoError(t, err)
	require.NoError(t, env.Validate())
}

func TestPublishHelpers(t *testing.T) {
	testInitLogger(t)
	type delivered struct {
		topic string
		env   models.EventEnvelope
	}
	var got []delivered
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env models.EventEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		got = append(got, delivered{topic: r.URL.Path, env: env})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newPublisherFor(srv.URL, models.PublishSettings{Source: "chat-api", Retry: fastRetry()})
	ctx := context.Background()

	_, err := p.PublishTaskEvent(ctx, models.EventTaskCompleted, "user-1", models.TaskPayload{ID: "t1"})
	require.NoError(t, err)
	_, err = p.PublishTaskDeleted(ctx, "user-1", "t1")
	require.NoError(t, err)
	_, err = p.PublishReminderEvent(ctx, models.EventReminderTriggered, "user-1",
		models.ReminderPayload{TaskID: "t1", TaskTitle: "x", RemindAt: time.Now().UTC()})
	require.NoError(t, err)
	_, err = p.PublishTaskSync(ctx, "user-1", "t1", "updated")
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Contains(t, got[0].topic, models.TopicTaskEvents)
	assert.Equal(t, models.EventTaskCompleted, got[0].env.EventType)
	assert.Equal(t, models.EventTaskDeleted, got[1].env.EventType)
	assert.Contains(t, got[2].topic, models.TopicReminders)
	assert.Contains(t, got[3].topic, models.TopicTaskUpdates)

	var sync models.TaskSyncPayload
	require.NoError(t, got[3].env.DecodePayload(&sync))
	assert.Equal(t, "t1", sync.TaskID)
	assert.Equal(t, "updated", sync.Action)
}
