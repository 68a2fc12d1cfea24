package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docbowl/internal/bowl"
	"github.com/iudanet/docbowl/internal/crypto"
	"github.com/iudanet/docbowl/internal/driver/memory"
	"github.com/iudanet/docbowl/internal/peer"
	"github.com/iudanet/docbowl/internal/server/token"
	"github.com/iudanet/docbowl/internal/syncer"
)

const testShare = "+notes.abcdef"

func newPeerWithShare(t *testing.T, share string) *peer.Peer {
	t.Helper()
	p := peer.New()
	b, err := bowl.New(context.Background(), memory.New(share), bowl.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() }) //nolint:errcheck
	require.NoError(t, p.AddReplica(b))
	return p
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/api/v1/sync"
}

func TestServer_Health(t *testing.T) {
	srv := New(newPeerWithShare(t, testShare), Config{Version: "1.2.3"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.2.3", health.Version)
}

func TestServer_SyncRequiresTokenWhenConfigured(t *testing.T) {
	tokenCfg := token.Config{Secret: []byte("server-secret"), TTL: time.Hour}
	srv := New(newPeerWithShare(t, testShare), Config{TokenConfig: tokenCfg})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	t.Run("without token rejected", func(t *testing.T) {
		_, err := syncer.Dial(context.Background(), wsURL(ts.URL), "")
		assert.Error(t, err)
	})

	t.Run("with wrong token rejected", func(t *testing.T) {
		_, err := syncer.Dial(context.Background(), wsURL(ts.URL), "garbage")
		assert.Error(t, err)
	})

	t.Run("with valid token accepted", func(t *testing.T) {
		tok, err := token.Generate(tokenCfg, "laptop")
		require.NoError(t, err)

		transport, err := syncer.Dial(context.Background(), wsURL(ts.URL), tok)
		require.NoError(t, err)
		require.NoError(t, transport.Close())
	})
}

// TestServer_EndToEndSync гоняет полную синхронизацию клиента с сервером
// через настоящий WebSocket
func TestServer_EndToEndSync(t *testing.T) {
	ctx := context.Background()

	serverPeer := newPeerWithShare(t, testShare)
	clientPeer := newPeerWithShare(t, testShare)

	alice, err := crypto.GenerateKeypair("alice")
	require.NoError(t, err)
	bob, err := crypto.GenerateKeypair("bob")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := serverPeer.Replica(testShare).Write(ctx, alice, bowl.WriteInput{
			Path:    fmt.Sprintf("/server/%d", i),
			Content: "from server",
		})
		require.NoError(t, err)
		_, err = clientPeer.Replica(testShare).Write(ctx, bob, bowl.WriteInput{
			Path:    fmt.Sprintf("/client/%d", i),
			Content: "from client",
		})
		require.NoError(t, err)
	}

	srv := New(serverPeer, Config{
		SyncOptions: syncer.Options{PollInterval: 20 * time.Millisecond},
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	transport, err := syncer.Dial(ctx, wsURL(ts.URL), "")
	require.NoError(t, err)

	conn := syncer.NewConn(transport, nil)
	coord := syncer.NewCoordinator(clientPeer, conn, syncer.Options{PollInterval: 20 * time.Millisecond})
	defer coord.Close() //nolint:errcheck

	require.NoError(t, coord.Start(ctx))
	assert.Equal(t, []string{testShare}, coord.CommonShares())

	syncCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	require.NoError(t, coord.SyncUntilCaughtUp(syncCtx))

	// Обе стороны сошлись на одном множестве путей
	for _, p := range []*peer.Peer{serverPeer, clientPeer} {
		paths, err := p.Replica(testShare).QueryPaths(bowl.Query{History: bowl.HistoryAll})
		require.NoError(t, err)
		sort.Strings(paths)
		assert.Len(t, paths, 10)
		assert.Equal(t, "/client/0", paths[0])
		assert.Equal(t, "/server/4", paths[9])
	}
}
