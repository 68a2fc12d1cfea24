package syncer

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docbowl/internal/bowl"
	"github.com/iudanet/docbowl/internal/crypto"
	"github.com/iudanet/docbowl/internal/driver/memory"
	"github.com/iudanet/docbowl/internal/models"
	"github.com/iudanet/docbowl/internal/peer"
)

const (
	shareA = "+sharea.aaaaaa"
	shareB = "+shareb.bbbbbb"
	shareC = "+sharec.cccccc"
	shareD = "+shared.dddddd"
)

func testOptions() Options {
	return Options{PollInterval: 20 * time.Millisecond}
}

func newPeerWithShares(t *testing.T, shares ...string) *peer.Peer {
	t.Helper()
	p := peer.New()
	for _, share := range shares {
		b, err := bowl.New(context.Background(), memory.New(share), bowl.Config{})
		require.NoError(t, err)
		t.Cleanup(func() { b.Close() }) //nolint:errcheck
		require.NoError(t, p.AddReplica(b))
	}
	return p
}

func writeDocs(t *testing.T, p *peer.Peer, share string, kp *crypto.Keypair, prefix string, n int) {
	t.Helper()
	ctx := context.Background()
	b := p.Replica(share)
	require.NotNil(t, b)
	for i := 0; i < n; i++ {
		_, err := b.Write(ctx, kp, bowl.WriteInput{
			Path:    fmt.Sprintf("%s/%04d", prefix, i),
			Content: fmt.Sprintf("%s doc %d", prefix, i),
		})
		require.NoError(t, err)
	}
}

// docKey - сравнимое представление документа без LocalIndex
// (LocalIndex у каждого bowl свой)
func docKey(d *models.Document) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s", d.Path, d.Author, d.Timestamp, d.Signature, d.Content)
}

func allDocKeys(t *testing.T, p *peer.Peer, share string) []string {
	t.Helper()
	b := p.Replica(share)
	require.NotNil(t, b)
	docs, err := b.QueryDocs(bowl.Query{History: bowl.HistoryAll, OrderBy: bowl.OrderPathAsc})
	require.NoError(t, err)

	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		keys = append(keys, docKey(d))
	}
	sort.Strings(keys)
	return keys
}

// connectPeers связывает два peer координаторами поверх in-memory pipe
func connectPeers(t *testing.T, p, q *peer.Peer) (*Coordinator, *Coordinator) {
	t.Helper()

	tp, tq := NewPipe()
	connP := NewConn(tp, nil)
	connQ := NewConn(tq, nil)

	coordP := NewCoordinator(p, connP, testOptions())
	coordQ := NewCoordinator(q, connQ, testOptions())
	t.Cleanup(func() {
		coordP.Close() //nolint:errcheck
		coordQ.Close() //nolint:errcheck
	})

	ctx := context.Background()
	require.NoError(t, coordP.Start(ctx))
	require.NoError(t, coordQ.Start(ctx))
	return coordP, coordQ
}

func syncBothUntilCaughtUp(t *testing.T, coordP, coordQ *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	errP := make(chan error, 1)
	go func() { errP <- coordP.SyncUntilCaughtUp(ctx) }()
	require.NoError(t, coordQ.SyncUntilCaughtUp(ctx))
	require.NoError(t, <-errP)
}

func TestSync_TwoPeerConvergence(t *testing.T) {
	p := newPeerWithShares(t, shareA, shareB, shareD)
	q := newPeerWithShares(t, shareA, shareC, shareD)

	alice, err := crypto.GenerateKeypair("alice")
	require.NoError(t, err)
	bob, err := crypto.GenerateKeypair("bob")
	require.NoError(t, err)

	for _, share := range []string{shareA, shareD} {
		writeDocs(t, p, share, alice, "/from-p", 10)
		writeDocs(t, q, share, bob, "/from-q", 10)
	}

	coordP, coordQ := connectPeers(t, p, q)

	// Общие shares - пересечение множеств
	common := coordP.CommonShares()
	sort.Strings(common)
	assert.Equal(t, []string{shareA, shareD}, common)
	assert.Equal(t, q.ID(), coordP.PartnerID())
	assert.Equal(t, p.ID(), coordQ.PartnerID())

	syncBothUntilCaughtUp(t, coordP, coordQ)

	for _, share := range []string{shareA, shareD} {
		keysP := allDocKeys(t, p, share)
		keysQ := allDocKeys(t, q, share)
		assert.Len(t, keysP, 20, "each side contributes 10 docs to %s", share)
		assert.Equal(t, keysP, keysQ, "doc sets must converge for %s", share)
	}

	// Не-общие shares не реплицируются
	assert.Nil(t, p.Replica(shareC))
	assert.Nil(t, q.Replica(shareB))

	// Вторая волна записей на стороне Q; после quiescence снова равенство
	for _, share := range []string{shareA, shareD} {
		writeDocs(t, q, share, bob, "/from-q-second", 10)
	}

	syncBothUntilCaughtUp(t, coordP, coordQ)

	for _, share := range []string{shareA, shareD} {
		keysP := allDocKeys(t, p, share)
		assert.Len(t, keysP, 30)
		assert.Equal(t, keysP, allDocKeys(t, q, share))
	}

	// Статусы отражают завершенную синхронизацию
	for share, st := range coordP.Status() {
		assert.True(t, st.CaughtUp, "session for %s must be caught up", share)
		assert.Equal(t, int64(20), st.Pulled, "P pulled both waves of Q docs for %s", share)
	}
}

func TestSync_NoCommonShares(t *testing.T) {
	p := newPeerWithShares(t, shareB)
	q := newPeerWithShares(t, shareC)

	coordP, coordQ := connectPeers(t, p, q)
	assert.Empty(t, coordP.CommonShares())
	assert.Empty(t, coordQ.CommonShares())

	// Без общих shares синхронизация тривиально завершена
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, coordP.SyncUntilCaughtUp(ctx))
}

func TestSync_RenegotiateOnReplicaAdd(t *testing.T) {
	p := newPeerWithShares(t, shareA)
	q := newPeerWithShares(t, shareA, shareB)

	coordP, _ := connectPeers(t, p, q)
	require.Equal(t, []string{shareA}, coordP.CommonShares())

	// Добавление replica общего share запускает передоговор
	b, err := bowl.New(context.Background(), memory.New(shareB), bowl.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() }) //nolint:errcheck
	require.NoError(t, p.AddReplica(b))

	require.Eventually(t, func() bool {
		common := coordP.CommonShares()
		return len(common) == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSync_CloseIsIdempotentOnce(t *testing.T) {
	p := newPeerWithShares(t, shareA)
	q := newPeerWithShares(t, shareA)

	coordP, _ := connectPeers(t, p, q)

	require.NoError(t, coordP.Close())
	assert.ErrorIs(t, coordP.Close(), ErrCoordinatorClosed)
}

func TestSync_ExpiredDocsAcceptedAndSweptImmediately(t *testing.T) {
	p := newPeerWithShares(t, shareA)
	q := newPeerWithShares(t, shareA)

	alice, err := crypto.GenerateKeypair("alice")
	require.NoError(t, err)

	// Q несет ephemeral документ, который истечет до прихода к P
	ctx := context.Background()
	bq := q.Replica(shareA)
	now := time.Now().UnixMicro()
	doc := &models.Document{
		Path:          "/chat/!msg",
		Author:        alice.Address(),
		Timestamp:     now - 1000,
		Content:       "vanishing",
		ContentHash:   crypto.ContentHash("vanishing"),
		ContentLength: int64(len("vanishing")),
		DeleteAfter:   now + 50_000, // 50ms
	}
	require.NoError(t, alice.SignDocument(doc))
	result, err := bq.Upsert(ctx, doc)
	require.NoError(t, err)
	require.True(t, result.Accepted())

	// Обычный документ для контроля
	writeDocs(t, q, shareA, alice, "/normal", 1)

	time.Sleep(60 * time.Millisecond) // ephemeral документ истек

	coordP, coordQ := connectPeers(t, p, q)
	syncBothUntilCaughtUp(t, coordP, coordQ)

	// Истекший документ не виден на P, обычный доехал
	bp := p.Replica(shareA)
	got, err := bp.GetLatestDocAtPath("/chat/!msg")
	require.NoError(t, err)
	assert.Nil(t, got)

	normal, err := bp.GetLatestDocAtPath("/normal/0000")
	require.NoError(t, err)
	assert.NotNil(t, normal)
}
