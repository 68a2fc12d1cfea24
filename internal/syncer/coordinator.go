package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/docbowl/internal/crypto"
	"github.com/iudanet/docbowl/internal/models"
	"github.com/iudanet/docbowl/internal/peer"
	"github.com/iudanet/docbowl/pkg/api"
)

var (
	// ErrCoordinatorClosed возвращается при операции над закрытым координатором
	ErrCoordinatorClosed = errors.New("sync coordinator is closed")
	// ErrNotNegotiated возвращается на RPC до завершения handshake
	ErrNotNegotiated = errors.New("common shares not negotiated yet")
)

// DefaultPollInterval - период опроса партнера в отсутствие push-уведомлений
const DefaultPollInterval = time.Second

// Options - настройки координатора; нулевые поля получают значения по умолчанию
type Options struct {
	Logger       *slog.Logger
	PollInterval time.Duration
	BatchLimit   int
}

// Coordinator управляет синхронизацией одного соединения:
// договаривается об общих shares и ведет по SyncSession на каждый
type Coordinator struct {
	peer   *peer.Peer
	conn   *Conn
	logger *slog.Logger

	pollInterval time.Duration
	batchLimit   int

	mu            sync.Mutex
	partnerID     string
	commonShares  []string
	sessions      map[string]*Session
	partnerStatus map[string]api.ShareSyncStatus
	writeUnsubs   map[string]func()
	statusSubs    map[int64]func(map[string]api.ShareSyncStatus)
	nextSubID     int64
	started       bool
	closed        bool

	statusChanged chan struct{}
	detach        func()
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewCoordinator создает координатор над peer и установленным RPC соединением.
// Координатор сразу начинает обслуживать syncer bag партнера;
// собственные sessions запускает Start.
func NewCoordinator(p *peer.Peer, conn *Conn, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.BatchLimit <= 0 || opts.BatchLimit > api.GetDocsMaxLimit {
		opts.BatchLimit = api.GetDocsMaxLimit
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		peer:          p,
		conn:          conn,
		logger:        opts.Logger,
		pollInterval:  opts.PollInterval,
		batchLimit:    opts.BatchLimit,
		sessions:      make(map[string]*Session),
		partnerStatus: make(map[string]api.ShareSyncStatus),
		writeUnsubs:   make(map[string]func()),
		statusSubs:    make(map[int64]func(map[string]api.ShareSyncStatus)),
		statusChanged: make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}

	conn.SetHandlers(c.serveRequest, c.handleNotify)
	c.detach = p.AttachSyncer(c)

	return c
}

// Start выполняет salted handshake и запускает session для каждого общего share
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	c.started = true
	c.mu.Unlock()

	if err := c.negotiate(ctx); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	return nil
}

// negotiate выполняет salted handshake и пересматривает набор sessions
func (c *Coordinator) negotiate(ctx context.Context) error {
	salt, err := crypto.GenerateSaltHex()
	if err != nil {
		return err
	}

	var resp api.HandshakeResponse
	if err := c.conn.Call(ctx, api.MethodSaltedHandshake, api.HandshakeRequest{Salt: salt}, &resp); err != nil {
		return err
	}

	common := crypto.IntersectSaltedShares(salt, c.peer.Shares(), resp.SaltedShares)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	c.partnerID = resp.PeerID

	commonSet := make(map[string]bool, len(common))
	for _, share := range common {
		commonSet[share] = true
	}

	// Останавливаем sessions для shares, выпавших из общего множества
	for share, s := range c.sessions {
		if !commonSet[share] {
			s.stop()
			delete(c.sessions, share)
			delete(c.partnerStatus, share)
			if unsub := c.writeUnsubs[share]; unsub != nil {
				unsub()
				delete(c.writeUnsubs, share)
			}
		}
	}

	// Запускаем sessions для новых общих shares
	for _, share := range common {
		if _, ok := c.sessions[share]; ok {
			continue
		}
		replica := c.peer.Replica(share)
		if replica == nil {
			continue
		}

		// Каждая локальная запись уведомляет партнера о новом highestLocalIndex.
		// Callback выполняется внутри upsert под мьютексом bowl,
		// поэтому запись в канал уходит на отдельной goroutine.
		shareAddr := share
		c.writeUnsubs[share] = replica.OnWrite(func(event models.WriteEvent) {
			highest := event.Doc.LocalIndex
			go func() {
				if err := c.conn.Notify(api.Notify{
					Kind:              api.NotifyShareState,
					Share:             shareAddr,
					HighestLocalIndex: highest,
				}); err != nil && !errors.Is(err, ErrConnClosed) {
					c.logger.Debug("Failed to notify partner about write", "share", shareAddr, "error", err)
				}
			}()
		})

		s := newSession(shareAddr, replica, c)
		c.sessions[share] = s
		go s.run(c.ctx)
	}

	c.commonShares = common
	c.mu.Unlock()

	c.logger.Info("Negotiated common shares", "partner", resp.PeerID, "common", len(common))

	// Праймим sessions стартовым состоянием партнера одним запросом.
	// Ошибка не фатальна: sessions опросят состояние сами.
	var states api.AllShareStatesResponse
	if err := c.conn.Call(ctx, api.MethodAllShareStates, nil, &states); err == nil {
		c.mu.Lock()
		sessions := make(map[string]*Session, len(c.sessions))
		for share, s := range c.sessions {
			sessions[share] = s
		}
		c.mu.Unlock()
		for share, highest := range states.States {
			if s, ok := sessions[share]; ok {
				s.noteAdvertised(highest)
			}
		}
	}

	c.signalStatus()
	return nil
}

// Renegotiate повторяет handshake в фоне.
// Вызывается peer при добавлении или удалении replica.
func (c *Coordinator) Renegotiate() {
	c.mu.Lock()
	if c.closed || !c.started {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		defer cancel()
		if err := c.negotiate(ctx); err != nil && !errors.Is(err, ErrCoordinatorClosed) {
			c.logger.Warn("Renegotiation failed", "error", err)
		}
	}()
}

// PartnerID возвращает peerId партнера (пустой до handshake)
func (c *Coordinator) PartnerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partnerID
}

// CommonShares возвращает адреса общих shares текущего раунда переговоров
func (c *Coordinator) CommonShares() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	shares := make([]string, len(c.commonShares))
	copy(shares, c.commonShares)
	return shares
}

// Status возвращает карту share -> состояние локальной session
func (c *Coordinator) Status() map[string]api.ShareSyncStatus {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	status := make(map[string]api.ShareSyncStatus, len(sessions))
	for _, s := range sessions {
		st := s.status()
		status[st.Share] = st
	}
	return status
}

// OnStatus регистрирует подписчика изменений статуса.
// Возвращает функцию отписки.
func (c *Coordinator) OnStatus(fn func(map[string]api.ShareSyncStatus)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.statusSubs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.statusSubs, id)
	}
}

// signalStatus будит ожидающих в SyncUntilCaughtUp и уведомляет подписчиков
func (c *Coordinator) signalStatus() {
	select {
	case c.statusChanged <- struct{}{}:
	default:
	}

	c.mu.Lock()
	subs := make([]func(map[string]api.ShareSyncStatus), 0, len(c.statusSubs))
	for _, fn := range c.statusSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	if len(subs) > 0 {
		snapshot := c.Status()
		for _, fn := range subs {
			fn(snapshot)
		}
	}
}

// caughtUpBothSides проверяет условие завершения syncUntilCaughtUp:
// для каждого общего share и локальная session, и партнер (по его
// последнему status push) сообщают caughtUp, причем партнер в этом push
// уже видел текущий highestLocalIndex нашей replica
func (c *Coordinator) caughtUpBothSides() bool {
	c.mu.Lock()
	shares := make([]string, len(c.commonShares))
	copy(shares, c.commonShares)
	sessions := make(map[string]*Session, len(c.sessions))
	for share, s := range c.sessions {
		sessions[share] = s
	}
	partnerStatus := make(map[string]api.ShareSyncStatus, len(c.partnerStatus))
	for share, st := range c.partnerStatus {
		partnerStatus[share] = st
	}
	c.mu.Unlock()

	for _, share := range shares {
		s, ok := sessions[share]
		if !ok || !s.status().CaughtUp {
			return false
		}
		// caughtUp партнера, отправленный до наших новых записей, устарел
		partner := partnerStatus[share]
		if !partner.CaughtUp || partner.PartnerHighestIndex < s.local.HighestLocalIndex() {
			return false
		}
	}
	return true
}

// SyncUntilCaughtUp блокируется, пока обе стороны не сообщат caughtUp
// по всем общим shares в одном раунде наблюдения
func (c *Coordinator) SyncUntilCaughtUp(ctx context.Context) error {
	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return ErrCoordinatorClosed
		}

		if c.caughtUpBothSides() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.statusChanged:
		case <-time.After(c.pollInterval):
		case <-c.ctx.Done():
			return ErrCoordinatorClosed
		}
	}
}

// serveRequest обслуживает syncer bag для партнера
func (c *Coordinator) serveRequest(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case api.MethodSaltedHandshake:
		var req api.HandshakeRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("malformed handshake params: %w", err)
		}
		shares := c.peer.Shares()
		hashes := make([]string, 0, len(shares))
		for _, share := range shares {
			hashes = append(hashes, crypto.SaltedShareHash(req.Salt, share))
		}
		return api.HandshakeResponse{PeerID: c.peer.ID(), SaltedShares: hashes}, nil

	case api.MethodAllShareStates:
		c.mu.Lock()
		shares := make([]string, len(c.commonShares))
		copy(shares, c.commonShares)
		c.mu.Unlock()

		states := make(map[string]int64, len(shares))
		for _, share := range shares {
			if replica := c.peer.Replica(share); replica != nil {
				states[share] = replica.HighestLocalIndex()
			}
		}
		return api.AllShareStatesResponse{States: states}, nil

	case api.MethodGetShareState:
		var req api.GetShareStateRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("malformed getShareState params: %w", err)
		}
		replica := c.peer.Replica(req.Share)
		if replica == nil {
			return nil, fmt.Errorf("unknown share")
		}
		return api.GetShareStateResponse{HighestLocalIndex: replica.HighestLocalIndex()}, nil

	case api.MethodGetDocs:
		var req api.GetDocsRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("malformed getDocs params: %w", err)
		}
		replica := c.peer.Replica(req.Share)
		if replica == nil {
			return nil, fmt.Errorf("unknown share")
		}
		limit := req.Limit
		if limit <= 0 || limit > api.GetDocsMaxLimit {
			limit = api.GetDocsMaxLimit
		}
		docs, err := replica.DocsSince(req.FromIndex, limit)
		if err != nil {
			return nil, err
		}
		wire := make([]api.Document, 0, len(docs))
		for _, doc := range docs {
			wire = append(wire, api.DocumentFromModel(doc))
		}
		return api.GetDocsResponse{Docs: wire}, nil

	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

// handleNotify обрабатывает push-уведомления партнера
func (c *Coordinator) handleNotify(n api.Notify) {
	switch n.Kind {
	case api.NotifyShareState:
		c.mu.Lock()
		s := c.sessions[n.Share]
		c.mu.Unlock()
		if s != nil {
			s.noteAdvertised(n.HighestLocalIndex)
		}

	case api.NotifySyncStatus:
		if n.Status == nil {
			return
		}
		c.mu.Lock()
		c.partnerStatus[n.Status.Share] = *n.Status
		c.mu.Unlock()
		c.signalStatus()
	}
}

// broadcastStatus публикует состояние session: подписчикам и партнеру
func (c *Coordinator) broadcastStatus(s *Session) {
	st := s.status()
	if err := c.conn.Notify(api.Notify{Kind: api.NotifySyncStatus, Share: st.Share, Status: &st}); err != nil && !errors.Is(err, ErrConnClosed) {
		c.logger.Debug("Failed to push sync status", "share", st.Share, "error", err)
	}
	c.signalStatus()
}

// Close останавливает sessions и разрывает соединение.
// Идемпотентность однократная: повторный Close возвращает ErrCoordinatorClosed.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	c.closed = true

	for share, s := range c.sessions {
		s.stop()
		delete(c.sessions, share)
	}
	for share, unsub := range c.writeUnsubs {
		unsub()
		delete(c.writeUnsubs, share)
	}
	detach := c.detach
	c.detach = nil
	c.mu.Unlock()

	c.cancel()
	if detach != nil {
		detach()
	}
	return c.conn.Close()
}
