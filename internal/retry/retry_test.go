package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testInitLogger initializes the logger for test execution, discarding output.
func testInitLogger(t *testing.T) {
	t.Helper()
	settings := models.ApplicationSettings{LogLevel: "error", LogFormat: "text"}
	err := logger.Init(settings, io.Discard)
	require.NoError(t, err, "Failed to initialize logger for test")
}

// Helper to create pointers for test values
func ptr[T any](v T) *T {
	return &v
}

func TestMergePolicies(t *testing.T) {
	defaultPolicy := &models.RetryPolicy{
		MaxRetries:    ptr(5),
		Delay:         ptr(1.0),
		BackoffFactor: ptr(2.0),
	}

	tests := []struct {
		name            string
		specific        *models.RetryPolicy
		defaultP        *models.RetryPolicy
		expectedRetries int
		expectedDelay   float64
		expectedFactor  float64
	}{
		{
			name:            "Specific overrides Default",
			specific:        &models.RetryPolicy{MaxRetries: ptr(3), Delay: ptr(0.5)},
			defaultP:        defaultPolicy,
			expectedRetries: 3,   // From specific
			expectedDelay:   0.5, // From specific
			expectedFactor:  2.0, // From default (specific was nil)
		},
		{
			name:            "Default used when Specific is nil",
			specific:        nil,
			defaultP:        defaultPolicy,
			expectedRetries: 5,
			expectedDelay:   1.0,
			expectedFactor:  2.0,
		},
		{
			name:            "Constants used when both nil",
			specific:        nil,
			defaultP:        nil,
			expectedRetries: DefaultMaxRetries,
			expectedDelay:   DefaultDelaySeconds,
			expectedFactor:  DefaultBackoffFactor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := MergePolicies(tt.specific, tt.defaultP)
			require.NotNil(t, merged.MaxRetries)
			require.NotNil(t, merged.Delay)
			require.NotNil(t, merged.BackoffFactor)
			assert.Equal(t, tt.expectedRetries, *merged.MaxRetries)
			assert.Equal(t, tt.expectedDelay, *merged.Delay)
			assert.Equal(t, tt.expectedFactor, *merged.BackoffFactor)
		})
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	testInitLogger(t)
	calls := 0
	err := Do(context.Background(), "test-op", nil, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	testInitLogger(t)
	policy := &models.RetryPolicy{MaxRetries: ptr(3), Delay: ptr(0.001), BackoffFactor: ptr(1.0)}
	calls := 0
	err := Do(context.Background(), "test-op", policy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient failure %d", calls)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	testInitLogger(t)
	policy := &models.RetryPolicy{MaxRetries: ptr(2), Delay: ptr(0.001), BackoffFactor: ptr(1.0)}
	wantErr := errors.New("permanent failure")
	calls := 0
	err := Do(context.Background(), "test-op", policy, func(ctx context.Context) error {
		calls++
		return wantErr
	})
	require.Error(t, err)
	assert.Equal(t, wantErr, err)
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestDo_ContextCancelled(t *testing.T) {
	testInitLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, "test-op", nil, func(ctx context.Context) error {
		t.Fatal("operation should not run with cancelled context")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	testInitLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	policy := &models.RetryPolicy{MaxRetries: ptr(5), Delay: ptr(5.0), BackoffFactor: ptr(1.0)}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, "test-op", policy, func(ctx context.Context) error {
		return errors.New("always fails")
	})
	require.ErrorIs(t, err, context.Canceled)
}
