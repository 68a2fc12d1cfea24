package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docbowl/internal/driver"
	"github.com/iudanet/docbowl/internal/models"
)

func doc(path, author string, ts, localIndex int64) *models.Document {
	return &models.Document{
		Path:          path,
		Author:        author,
		Timestamp:     ts,
		Content:       "content",
		ContentHash:   "hash",
		ContentLength: 7,
		Signature:     "sig",
		LocalIndex:    localIndex,
	}
}

func newTestDriver(t *testing.T) (*Driver, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "share.db")
	d, err := New(context.Background(), dbPath, "+test.abcdef")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() }) //nolint:errcheck
	return d, dbPath
}

func TestDriver_PutLoadAll(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t)

	require.NoError(t, d.Put(ctx, doc("/b", "@a.k", 1, 1)))
	require.NoError(t, d.Put(ctx, doc("/a", "@b.k", 2, 2)))

	docs, err := d.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(1), docs[0].LocalIndex)
	assert.Equal(t, "/b", docs[0].Path)
	assert.Equal(t, int64(2), docs[1].LocalIndex)
}

func TestDriver_PutReplacesSamePathAuthor(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t)

	require.NoError(t, d.Put(ctx, doc("/a", "@a.k", 1, 1)))
	require.NoError(t, d.Put(ctx, doc("/a", "@a.k", 5, 2)))

	docs, err := d.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(2), docs[0].LocalIndex)
	assert.Equal(t, int64(5), docs[0].Timestamp)
}

func TestDriver_RecoverAfterReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "share.db")

	d, err := New(ctx, dbPath, "+test.abcdef")
	require.NoError(t, err)
	require.NoError(t, d.Put(ctx, doc("/a", "@a.k", 1, 1)))
	require.NoError(t, d.Put(ctx, doc("/b", "@a.k", 2, 7)))
	require.NoError(t, d.Close())

	reopened, err := New(ctx, dbPath, "+test.abcdef")
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck

	highest, err := reopened.HighestLocalIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), highest)

	docs, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestDriver_ShareMismatch(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "share.db")

	d, err := New(ctx, dbPath, "+test.abcdef")
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = New(ctx, dbPath, "+other.abcdef")
	assert.Error(t, err)
}

func TestDriver_Delete(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t)

	require.NoError(t, d.Put(ctx, doc("/a", "@a.k", 1, 1)))
	require.NoError(t, d.Delete(ctx, "/a", "@a.k"))

	docs, err := d.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	assert.ErrorIs(t, d.Delete(ctx, "/a", "@a.k"), driver.ErrDocNotFound)
}

func TestDriver_Closed(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t)
	require.NoError(t, d.Close())

	_, err := d.LoadAll(ctx)
	assert.ErrorIs(t, err, driver.ErrDriverClosed)
}
