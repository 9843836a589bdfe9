package app

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/habitsync/internal/config"
	"example.com/habitsync/internal/domain"
	"example.com/habitsync/internal/recordstore/pocketbase"
)

func memoryConfig() config.Config {
	return config.Config{
		StoreBackend:  config.BackendMemory,
		UserID:        "u1",
		CheckInMode:   "read_then_write",
		Timezone:      "UTC",
		FailureBuffer: 4,
	}
}

func TestNewMemoryBackendRunsIntents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Coordinator.Start(ctx))
	_, err = a.Coordinator.CreateHabit(ctx, domain.NewHabit{Name: "Stretch", Type: domain.HabitGood})
	require.NoError(t, err)
	assert.Len(t, a.Coordinator.Habits().Items, 1)
	assert.Equal(t, "u1", a.Session.UserID)
}

func TestCloseReturnsWithKafkaConfigured(t *testing.T) {
	cfg := memoryConfig()
	cfg.KafkaBrokers = []string{"127.0.0.1:1"}
	cfg.ChangefeedTopic = "habitsync.changes"
	cfg.StoreTimeout = 200 * time.Millisecond

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	_, err = a.Coordinator.CreateHabit(context.Background(), domain.NewHabit{Name: "Stretch", Type: domain.HabitGood})
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		a.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return while the parent context was still live")
	}
}

func TestNewRequiresUserForLocalBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.UserID = ""
	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestNewPocketBaseParsesToken(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "pb-user",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("irrelevant"))
	require.NoError(t, err)

	cfg := memoryConfig()
	cfg.StoreBackend = config.BackendPocketBase
	cfg.StoreURL = "http://127.0.0.1:1"
	cfg.AuthToken = signed

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "pb-user", a.Session.UserID)
	assert.IsType(t, &pocketbase.Client{}, a.Store)

	cfg.AuthToken = ""
	_, err = New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}
