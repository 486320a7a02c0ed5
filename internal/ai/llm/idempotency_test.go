package llm

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-orchestrator/internal/common/logger"
)

func TestMemoryIdempotencyStore(t *testing.T) {
	store := NewMemoryIdempotencyStore(50*time.Millisecond, 10)
	ctx := context.Background()

	fresh, err := store.Reserve(ctx, "k", 0)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, _ = store.Reserve(ctx, "k", 0)
	assert.False(t, fresh)

	time.Sleep(100 * time.Millisecond)
	fresh, _ = store.Reserve(ctx, "k", 0)
	assert.True(t, fresh)
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisIdempotencyStore(client)
	ctx := context.Background()

	fresh, err := store.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.True(t, mr.Exists("ai:idem:k"))

	fresh, err = store.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)

	mr.FastForward(2 * time.Minute)
	fresh, err = store.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestClient_IdempotencyStoreErrorDoesNotBlock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectSetNX("ai:idem:req-9", 1, time.Minute).SetErr(stderrors.New("connection refused"))

	p := &scriptedProvider{responses: []func(CompletionRequest) (*CompletionResponse, error){text("ok")}}
	client := NewClient(p, nil, nil, NewRedisIdempotencyStore(db), testConfig(), nil, logger.NewTestLogger(t))

	res, err := client.Chat(context.Background(), NewConversation(UserMessage("hi")), Options{IdempotencyKey: "req-9"})

	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}
