package querycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type page struct {
	Items []string `json:"items"`
	Total int      `json:"total"`
}

func TestNewKey(t *testing.T) {
	tr := true
	tests := []struct {
		name string
		key  Key
		want Key
	}{
		{"no parts", NewKey(Accounts), "accounts:"},
		{"parts", NewKey(Emails, "unread", 2, 20), "emails:unread|2|20"},
		{"nil bool", NewKey(Rules, (*bool)(nil), ""), "rules:-|"},
		{"set bool", NewKey(Rules, &tr, "metadata_based"), "rules:true|metadata_based"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key)
		})
	}
	assert.Equal(t, Emails, NewKey(Emails, "all", 1).Resource())
}

func TestFetchCachesResult(t *testing.T) {
	c := New(NewMemory(), time.Minute, nil)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (page, error) {
		calls++
		return page{Items: []string{"a"}, Total: 1}, nil
	}

	key := NewKey(Emails, "all", 1)
	v, err := Fetch(ctx, c, key, load)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Total)

	v, err = Fetch(ctx, c, key, load)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, v.Items)
	assert.Equal(t, 1, calls)
}

func TestFetchDoesNotCacheErrors(t *testing.T) {
	mem := NewMemory()
	c := New(mem, time.Minute, nil)
	boom := errors.New("boom")

	_, err := Fetch(context.Background(), c, NewKey(Rules), func(context.Context) (page, error) {
		return page{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, mem.Len())
}

func TestInvalidateRemovesEveryVariant(t *testing.T) {
	mem := NewMemory()
	c := New(mem, time.Minute, nil)
	ctx := context.Background()
	load := func(context.Context) (page, error) { return page{Total: 1}, nil }

	for _, filter := range []string{"all", "unread", "important"} {
		for p := 1; p <= 3; p++ {
			_, err := Fetch(ctx, c, NewKey(Emails, filter, p), load)
			require.NoError(t, err)
		}
	}
	_, err := Fetch(ctx, c, NewKey(Rules), load)
	require.NoError(t, err)
	require.Equal(t, 10, mem.Len())

	require.NoError(t, c.Invalidate(ctx, Emails))
	assert.Equal(t, 1, mem.Len())

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, mem.Len())
}

func TestInvalidateDoesNotTouchSimilarNames(t *testing.T) {
	mem := NewMemory()
	c := New(mem, time.Minute, nil)
	ctx := context.Background()
	load := func(context.Context) (page, error) { return page{}, nil }

	_, _ = Fetch(ctx, c, NewKey(Email, "e1"), load)
	_, _ = Fetch(ctx, c, NewKey(Emails, "all"), load)

	require.NoError(t, c.Invalidate(ctx, Email))
	assert.Equal(t, 1, mem.Len())
}

func TestScopesShareBackend(t *testing.T) {
	mem := NewMemory()
	user := "u1"
	c := New(mem, time.Minute, nil, WithScope(func() string { return user }))
	ctx := context.Background()
	key := NewKey(Emails, "all", 1)
	loads := 0
	load := func(total int) func(context.Context) (page, error) {
		return func(context.Context) (page, error) {
			loads++
			return page{Total: total}, nil
		}
	}

	v, err := Fetch(ctx, c, key, load(1))
	require.NoError(t, err)
	assert.Equal(t, 1, v.Total)

	// Another user asking for the same read gets their own data.
	user = "u2"
	v, err = Fetch(ctx, c, key, load(2))
	require.NoError(t, err)
	assert.Equal(t, 2, v.Total)
	assert.Equal(t, 2, loads)
	_, err = Fetch(ctx, c, NewKey(Rules), load(2))
	require.NoError(t, err)
	require.Equal(t, 3, mem.Len())

	require.NoError(t, c.Invalidate(ctx, Emails))
	assert.Equal(t, 2, mem.Len())
	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 1, mem.Len())

	user = "u1"
	v, err = Fetch(ctx, c, key, load(3))
	require.NoError(t, err)
	assert.Equal(t, 1, v.Total, "first user's entry survives")
	assert.Equal(t, 3, loads)
}

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mem := NewMemory()
	mem.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, "k", []byte("v"), time.Second))
	_, ok, _ := mem.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = mem.Get(ctx, "k")
	assert.False(t, ok)
}

func TestNilCacheLoadsDirectly(t *testing.T) {
	var c *Cache
	v, err := Fetch(context.Background(), c, NewKey(Agent), func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.NoError(t, c.Invalidate(context.Background(), Agent))
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	r, err := NewRedis(ctx, "localhost:6379", "", 15)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer r.Close()
	r.namespace = "inboxai-test:" + time.Now().Format("150405.000000") + ":"

	c := New(r, time.Minute, nil)
	load := func(context.Context) (page, error) { return page{Total: 2}, nil }
	_, err = Fetch(ctx, c, NewKey(Emails, "all", 1), load)
	require.NoError(t, err)
	_, ok, err := r.Get(ctx, string(NewKey(Emails, "all", 1)))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Invalidate(ctx, Emails))
	_, ok, err = r.Get(ctx, string(NewKey(Emails, "all", 1)))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `emails:a\*b\?`, escapeGlob("emails:a*b?"))
}
