package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docbowl/internal/bowl"
	"github.com/iudanet/docbowl/internal/crypto"
	"github.com/iudanet/docbowl/internal/driver/memory"
)

func newTestReplica(t *testing.T) (*bowl.Bowl, *crypto.Keypair) {
	t.Helper()

	b, err := bowl.New(context.Background(), memory.New("+test.abcdef"), bowl.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() }) //nolint:errcheck

	kp, err := crypto.GenerateKeypair("alice")
	require.NoError(t, err)
	return b, kp
}

func TestCache_MemoizesReads(t *testing.T) {
	ctx := context.Background()
	replica, kp := newTestReplica(t)
	_, err := replica.Write(ctx, kp, bowl.WriteInput{Path: "/a", Content: "x"})
	require.NoError(t, err)

	c := New(replica, 0)
	defer c.Close() //nolint:errcheck

	first, err := c.GetAllDocs()
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Повторный идентичный вызов возвращает сохраненное значение
	second, err := c.GetAllDocs()
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Same(t, first[0], second[0], "cached call must return the stored result")
}

func TestCache_VersionBumpsOnWrite(t *testing.T) {
	ctx := context.Background()
	replica, kp := newTestReplica(t)

	c := New(replica, 0)
	defer c.Close() //nolint:errcheck

	assert.Equal(t, int64(0), c.Version())

	_, err := replica.Write(ctx, kp, bowl.WriteInput{Path: "/a", Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version())

	_, err = replica.Write(ctx, kp, bowl.WriteInput{Path: "/a", Content: "y"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Version())
}

func TestCache_RecomputesHeldKeysOnWrite(t *testing.T) {
	ctx := context.Background()
	replica, kp := newTestReplica(t)

	c := New(replica, 0)
	defer c.Close() //nolint:errcheck

	var mu sync.Mutex
	var updatedKeys []string
	unsub := c.OnCacheUpdated(func(key string) {
		mu.Lock()
		updatedKeys = append(updatedKeys, key)
		mu.Unlock()
	})
	defer unsub()

	docs, err := c.GetAllDocs()
	require.NoError(t, err)
	assert.Empty(t, docs)

	doc, err := c.GetLatestDocAtPath("/a")
	require.NoError(t, err)
	assert.Nil(t, doc)

	_, err = replica.Write(ctx, kp, bowl.WriteInput{Path: "/a", Content: "x"})
	require.NoError(t, err)

	// Одно уведомление на каждый обновленный ключ
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updatedKeys) == 2
	}, 2*time.Second, 5*time.Millisecond)

	docs, err = c.GetAllDocs()
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	doc, err = c.GetLatestDocAtPath("/a")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "x", doc.Content)
}

func TestCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	replica, kp := newTestReplica(t)

	c := New(replica, 10*time.Millisecond)
	defer c.Close() //nolint:errcheck

	docs, err := c.GetAllDocsAtPath("/a")
	require.NoError(t, err)
	assert.Empty(t, docs)

	// Пишем мимо кеша... запись идет в replica, но entry уже истечет по TTL
	_, err = replica.Write(ctx, kp, bowl.WriteInput{Path: "/a", Content: "x"})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	docs, err = c.GetAllDocsAtPath("/a")
	require.NoError(t, err)
	assert.Len(t, docs, 1, "expired entry must be recomputed")
}

func TestCache_QueryDocsKeyedByQuery(t *testing.T) {
	ctx := context.Background()
	replica, kp := newTestReplica(t)
	_, err := replica.Write(ctx, kp, bowl.WriteInput{Path: "/blog/a", Content: "x"})
	require.NoError(t, err)
	_, err = replica.Write(ctx, kp, bowl.WriteInput{Path: "/wiki/b", Content: "y"})
	require.NoError(t, err)

	c := New(replica, 0)
	defer c.Close() //nolint:errcheck

	blog, err := c.QueryDocs(bowl.Query{Filter: &bowl.Filter{PathStartsWith: "/blog/"}})
	require.NoError(t, err)
	assert.Len(t, blog, 1)

	all, err := c.QueryDocs(bowl.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCache_Closed(t *testing.T) {
	replica, _ := newTestReplica(t)

	c := New(replica, 0)
	require.NoError(t, c.Close())

	_, err := c.GetAllDocs()
	assert.ErrorIs(t, err, ErrCacheClosed)

	_, err = c.GetLatestDocAtPath("/a")
	assert.ErrorIs(t, err, ErrCacheClosed)

	_, err = c.QueryDocs(bowl.Query{})
	assert.ErrorIs(t, err, ErrCacheClosed)

	assert.ErrorIs(t, c.Close(), ErrCacheClosed)
}
