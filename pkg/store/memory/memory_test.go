package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formwizard/pkg/attachments"
	"github.com/goliatone/go-formwizard/pkg/store"
	"github.com/goliatone/go-formwizard/pkg/store/memory"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC) }
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	s := memory.New(memory.WithIDs(func() string { return "f-1" }), memory.WithClock(fixedClock()))
	ctx := context.Background()

	id, err := s.Create(ctx, map[string]any{"fullName": "Ravi"}, store.Files{
		"photo": {Name: "ravi.png", Data: []byte("png")},
	})
	require.NoError(t, err)
	require.Equal(t, "f-1", id)

	entity, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Ravi", entity["fullName"])
	require.Equal(t, "ravi.png", entity["photo"])
	require.Equal(t, "2026-10-19T10:00:00Z", entity["createdAt"])

	file, ok := s.File(id, "photo")
	require.True(t, ok)
	require.Equal(t, []byte("png"), file.Data)
}

func TestUpdateMergesAndKeepsFiles(t *testing.T) {
	t.Parallel()

	s := memory.New(memory.WithEntities(map[string]store.Entity{
		"f-1": {"id": "f-1", "fullName": "Ravi", "bankName": "SBI", "photo": "old.png"},
	}))
	ctx := context.Background()

	_, err := s.Update(ctx, "f-1", map[string]any{"bankName": "Canara"}, nil)
	require.NoError(t, err)

	entity, err := s.GetByID(ctx, "f-1")
	require.NoError(t, err)
	require.Equal(t, "Ravi", entity["fullName"])
	require.Equal(t, "Canara", entity["bankName"])
	require.Equal(t, "old.png", entity["photo"])
}

func TestMissingEntity(t *testing.T) {
	t.Parallel()

	s := memory.New()
	_, err := s.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Update(context.Background(), "nope", map[string]any{}, nil)
	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, 404, storeErr.Status)
}

func TestFailNextIsConsumedOnce(t *testing.T) {
	t.Parallel()

	s := memory.New()
	boom := &store.Error{Status: 503, Message: "maintenance"}
	s.FailNext(boom)

	_, err := s.Create(context.Background(), map[string]any{"a": 1}, nil)
	require.True(t, errors.Is(err, boom))

	_, err = s.Create(context.Background(), map[string]any{"a": 1}, nil)
	require.NoError(t, err)
	require.Len(t, s.Calls(), 2)
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := memory.New().Create(ctx, nil, store.Files{"x": attachments.File{}})
	require.ErrorIs(t, err, context.Canceled)
}
