package peer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docbowl/internal/bowl"
	"github.com/iudanet/docbowl/internal/driver/memory"
	"github.com/iudanet/docbowl/pkg/api"
)

// fakeSyncer отслеживает вызовы Renegotiate
type fakeSyncer struct {
	mu           sync.Mutex
	renegotiated int
	partnerID    string
	status       map[string]api.ShareSyncStatus
}

func (f *fakeSyncer) Renegotiate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renegotiated++
}

func (f *fakeSyncer) PartnerID() string { return f.partnerID }

func (f *fakeSyncer) Status() map[string]api.ShareSyncStatus { return f.status }

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renegotiated
}

func newReplica(t *testing.T, share string) *bowl.Bowl {
	t.Helper()
	b, err := bowl.New(context.Background(), memory.New(share), bowl.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() }) //nolint:errcheck
	return b
}

func TestPeer_StableID(t *testing.T) {
	p := New()
	assert.NotEmpty(t, p.ID())
	assert.Equal(t, p.ID(), p.ID())
	assert.NotEqual(t, p.ID(), New().ID())
}

func TestPeer_AddRemoveReplica(t *testing.T) {
	p := New()
	b := newReplica(t, "+a.aaaaaa")

	require.NoError(t, p.AddReplica(b))
	assert.Equal(t, b, p.Replica("+a.aaaaaa"))
	assert.Equal(t, []string{"+a.aaaaaa"}, p.Shares())

	assert.ErrorIs(t, p.AddReplica(b), ErrReplicaExists)

	removed, err := p.RemoveReplica("+a.aaaaaa")
	require.NoError(t, err)
	assert.Equal(t, b, removed)
	assert.Nil(t, p.Replica("+a.aaaaaa"))

	_, err = p.RemoveReplica("+a.aaaaaa")
	assert.ErrorIs(t, err, ErrReplicaNotFound)
}

func TestPeer_SharesSorted(t *testing.T) {
	p := New()
	for _, share := range []string{"+c.cccccc", "+a.aaaaaa", "+b.bbbbbb"} {
		require.NoError(t, p.AddReplica(newReplica(t, share)))
	}
	assert.Equal(t, []string{"+a.aaaaaa", "+b.bbbbbb", "+c.cccccc"}, p.Shares())
}

func TestPeer_SyncersRenegotiateOnReplicaChanges(t *testing.T) {
	p := New()
	s := &fakeSyncer{partnerID: "partner-1"}
	detach := p.AttachSyncer(s)

	require.NoError(t, p.AddReplica(newReplica(t, "+a.aaaaaa")))
	assert.Equal(t, 1, s.count())

	_, err := p.RemoveReplica("+a.aaaaaa")
	require.NoError(t, err)
	assert.Equal(t, 2, s.count())

	// После отвязки syncer не дергается
	detach()
	require.NoError(t, p.AddReplica(newReplica(t, "+b.bbbbbb")))
	assert.Equal(t, 2, s.count())
}

func TestPeer_SyncStatusAggregation(t *testing.T) {
	p := New()

	s1 := &fakeSyncer{
		partnerID: "partner-1",
		status: map[string]api.ShareSyncStatus{
			"+a.aaaaaa": {Share: "+a.aaaaaa", Pulled: 3, CaughtUp: true},
		},
	}
	s2 := &fakeSyncer{partnerID: ""} // handshake еще не прошел

	p.AttachSyncer(s1)
	p.AttachSyncer(s2)

	status := p.SyncStatus()
	require.Len(t, status, 1)
	assert.Equal(t, int64(3), status["partner-1"]["+a.aaaaaa"].Pulled)
	assert.True(t, status["partner-1"]["+a.aaaaaa"].CaughtUp)
}
