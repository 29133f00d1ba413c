package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client), mr
}

func sampleState(id string) *State {
	st := New(id, []string{"Contact", "Employment"}, map[string]string{"Client_Name": "Jane Doe"})
	st.AppendTurn(SpeakerAgent, "Hello", "")
	st.AppendTurn(SpeakerCaller, "hi", "")
	st.Flags["own-vehicle"] = true
	return st
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	st := sampleState("abc")
	require.NoError(t, store.Put(ctx, "abc", st, time.Hour))

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, "abc", got.ID)
	require.Equal(t, StatusActive, got.Status)
	require.Equal(t, []string{"Contact", "Employment"}, got.SectionOrder)
	require.True(t, got.Flags["own-vehicle"])
	require.Len(t, got.History, 2)

	a, ok := got.Answers["Client_Name"]
	require.True(t, ok)
	require.Equal(t, "Jane Doe", a.Value)
	require.Equal(t, SourcePrefilled, a.Source)
	require.False(t, a.Confirmed)
}

func TestRedisStore_MissingAndDeleted(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "x", sampleState("x"), time.Hour))
	require.NoError(t, store.Delete(ctx, "x"))
	_, err = store.Get(ctx, "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_TTLExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "y", sampleState("y"), 30*time.Second))
	mr.FastForward(31 * time.Second)
	_, err := store.Get(ctx, "y")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, store.Put(context.Background(), "z", sampleState("z"), time.Hour))
	require.True(t, mr.Exists("intake:session:z"))
}

func TestMemoryStore_RoundTripAndTTL(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	st := sampleState("m")
	require.NoError(t, store.Put(ctx, "m", st, time.Hour))
	got, err := store.Get(ctx, "m")
	require.NoError(t, err)
	require.Equal(t, "m", got.ID)

	// a later Put must not alias the stored state
	st.Status = StatusCompleted
	got2, err := store.Get(ctx, "m")
	require.NoError(t, err)
	require.Equal(t, StatusActive, got2.Status)

	require.NoError(t, store.Put(ctx, "short", sampleState("short"), time.Nanosecond))
	time.Sleep(time.Millisecond)
	_, err = store.Get(ctx, "short")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "m"))
	_, err = store.Get(ctx, "m")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecord_StableAnswerOrder(t *testing.T) {
	st := New("r", []string{"Contact"}, nil)
	st.Answers["Zeta"] = Answer{Value: "z"}
	st.Answers["Alpha"] = Answer{Value: "a"}
	st.Answers["Mid"] = Answer{Value: "m"}

	rec := st.Record()
	require.Equal(t, []string{"Alpha", "Mid", "Zeta"},
		[]string{rec.Answers[0].QuestionID, rec.Answers[1].QuestionID, rec.Answers[2].QuestionID})
	require.Len(t, rec.Sections, 1)
	require.Equal(t, SectionNotStarted, rec.Sections[0].Status)
}
