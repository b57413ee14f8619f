package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pbaity/herald/internal/consumer"
	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/internal/outbox"
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

// mockOutbox records enqueued intents.
type mockOutbox struct {
	EnqueueFunc func(intent outbox.Intent) error
	mu          sync.Mutex
	intents     []outbox.Intent
}

func (m *mockOutbox) Enqueue(intent outbox.Intent) error {
	m.mu.Lock()
	m.intents = append(m.intents, intent)
	m.mu.Unlock()
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(intent)
	}
	return nil
}

func (m *mockOutbox) recorded() []outbox.Intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbox.Intent(nil), m.intents...)
}

func testConfig() *models.Config {
	return &models.Config{
		Application: models.ApplicationSettings{ListenAddr: ":0"},
		Reminder:    models.ReminderSettings{CallbackRoute: "/api/v1/jobs/reminder-callback"},
	}
}

func testEndpoint(route, topic string) consumer.Endpoint {
	return consumer.Endpoint{
		Subscription: consumer.Subscription{PubSubName: "pubsub", Topic: topic, Route: route},
		Route:        route,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	}
}

func TestHandleSubscribe_ListsEnabledConsumers(t *testing.T) {
	testInitLogger(t)
	s := NewHTTPServer(testConfig(), Options{
		Outbox: &mockOutbox{},
		Endpoints: []consumer.Endpoint{
			testEndpoint("/events/audit/task-events", models.TopicTaskEvents),
			testEndpoint("/events/reminders", models.TopicReminders),
		},
	})

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dapr/subscribe", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var subs []consumer.Subscription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	require.Len(t, subs, 2)
	assert.Equal(t, models.TopicTaskEvents, subs[0].Topic)
	assert.Equal(t, "/events/reminders", subs[1].Route)
}

func TestHandleSubscribe_EmptyWithoutConsumers(t *testing.T) {
	testInitLogger(t)
	s := NewHTTPServer(testConfig(), Options{Outbox: &mockOutbox{}})

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dapr/subscribe", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestHandleReminderCallback_EnqueuesOnePublish(t *testing.T) {
	testInitLogger(t)
	box := &mockOutbox{}
	s := NewHTTPServer(testConfig(), Options{Outbox: box})

	body := `{"task_id":"task-1","task_title":"Water plants","user_id":"alice","remind_at":"2026-03-01T12:45:00Z"}`
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/reminder-callback", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	intents := box.recorded()
	require.Len(t, intents, 1, "Exactly one publish intent per fired callback")
	assert.Equal(t, outbox.KindPublish, intents[0].Kind)
	assert.Equal(t, models.TopicReminders, intents[0].Topic)
	assert.Equal(t, models.EventReminderTriggered, intents[0].EventType)
	assert.Equal(t, "alice", intents[0].UserID)

	var payload models.ReminderPayload
	require.NoError(t, json.Unmarshal(intents[0].Payload, &payload))
	assert.Equal(t, "task-1", payload.TaskID)
	assert.Equal(t, "Water plants", payload.TaskTitle)
}

func TestHandleReminderCallback_AcceptsWrappedJobBody(t *testing.T) {
	testInitLogger(t)
	box := &mockOutbox{}
	s := NewHTTPServer(testConfig(), Options{Outbox: box})

	body := `{"name":"reminder-task-1","data":{"task_id":"task-1","task_title":"Water plants","user_id":"alice","remind_at":"2026-03-01T12:45:00Z"}}`
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/reminder-callback", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	intents := box.recorded()
	require.Len(t, intents, 1)
	var payload models.ReminderPayload
	require.NoError(t, json.Unmarshal(intents[0].Payload, &payload))
	assert.Equal(t, "task-1", payload.TaskID)
}

func TestHandleReminderCallback_RejectsBadBodies(t *testing.T) {
	testInitLogger(t)
	box := &mockOutbox{}
	s := NewHTTPServer(testConfig(), Options{Outbox: box})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{broken`},
		{"missing task id", `{"user_id":"alice"}`},
		{"missing user id", `{"task_id":"task-1"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/reminder-callback", strings.NewReader(tc.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, box.recorded())
}

func TestHandleReminderCallback_EnqueueFailureIs500(t *testing.T) {
	testInitLogger(t)
	box := &mockOutbox{EnqueueFunc: func(outbox.Intent) error { return errors.New("outbox full") }}
	s := NewHTTPServer(testConfig(), Options{Outbox: box})

	body := `{"task_id":"task-1","user_id":"alice","remind_at":"2026-03-01T12:45:00Z"}`
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/reminder-callback", strings.NewReader(body)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	testInitLogger(t)
	s := NewHTTPServer(testConfig(), Options{Outbox: &mockOutbox{}})

	for _, route := range []string{"/health", "/ready"} {
		rec := httptest.NewRecorder()
		s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, route, nil))
		assert.Equal(t, http.StatusOK, rec.Code, route)
	}
}

func getFreePort(t *testing.T) string {
	t.Helper()
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	require.NoError(t, err)
	l, err := net.ListenTCP("tcp", addr)
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

func TestServer_StartStop(t *testing.T) {
	testInitLogger(t)
	freeAddr := getFreePort(t)

	cfg := testConfig()
	cfg.Application.ListenAddr = freeAddr
	s := NewHTTPServer(cfg, Options{Outbox: &mockOutbox{}})
	s.Start()

	var conn net.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, err = net.DialTimeout("tcp", freeAddr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.NoError(t, err, "Server did not start listening on %s", freeAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	_, err = net.DialTimeout("tcp", freeAddr, 200*time.Millisecond)
	require.Error(t, err, "Server should not be listening after Stop()")

	require.NoError(t, s.Stop(ctx), "Stopping an already stopped server should not error")
}
