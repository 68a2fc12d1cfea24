// Package peer реализует реестр replicas узла.
// Peer хранит bowls по адресам shares и предоставляет их syncers.
package peer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iudanet/docbowl/internal/bowl"
	"github.com/iudanet/docbowl/pkg/api"
)

var (
	// ErrReplicaExists возвращается при добавлении replica уже известного share
	ErrReplicaExists = errors.New("replica already exists")
	// ErrReplicaNotFound возвращается, когда share не зарегистрирован
	ErrReplicaNotFound = errors.New("replica not found")
)

// Syncer - привязанный к peer координатор синхронизации.
// Добавление или удаление replica заставляет syncers заново
// договориться об общих shares.
type Syncer interface {
	// Renegotiate повторяет handshake и пересматривает набор sessions
	Renegotiate()
	// PartnerID возвращает идентификатор партнера (пустой до handshake)
	PartnerID() string
	// Status возвращает карту share -> состояние session
	Status() map[string]api.ShareSyncStatus
}

// Peer - набор replicas, индексированный адресом share
type Peer struct {
	peerID string

	mu       sync.RWMutex
	replicas map[string]*bowl.Bowl
	syncers  map[int64]Syncer
	nextID   int64
}

// New создает peer со стабильным случайным peerId
func New() *Peer {
	return &Peer{
		peerID:   uuid.New().String(),
		replicas: make(map[string]*bowl.Bowl),
		syncers:  make(map[int64]Syncer),
	}
}

// ID возвращает peerId, используемый в sync handshake
func (p *Peer) ID() string {
	return p.peerID
}

// AddReplica регистрирует replica; привязанные syncers передоговариваются
func (p *Peer) AddReplica(b *bowl.Bowl) error {
	p.mu.Lock()
	share := b.ShareAddress()
	if _, ok := p.replicas[share]; ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrReplicaExists, share)
	}
	p.replicas[share] = b
	syncers := p.syncersLocked()
	p.mu.Unlock()

	for _, s := range syncers {
		s.Renegotiate()
	}
	return nil
}

// RemoveReplica убирает replica из реестра (не закрывая её);
// привязанные syncers передоговариваются
func (p *Peer) RemoveReplica(share string) (*bowl.Bowl, error) {
	p.mu.Lock()
	b, ok := p.replicas[share]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrReplicaNotFound, share)
	}
	delete(p.replicas, share)
	syncers := p.syncersLocked()
	p.mu.Unlock()

	for _, s := range syncers {
		s.Renegotiate()
	}
	return b, nil
}

// Replica возвращает bowl для share (nil, если share не зарегистрирован)
func (p *Peer) Replica(share string) *bowl.Bowl {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.replicas[share]
}

// Shares возвращает отсортированные адреса зарегистрированных shares
func (p *Peer) Shares() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	shares := make([]string, 0, len(p.replicas))
	for share := range p.replicas {
		shares = append(shares, share)
	}
	sort.Strings(shares)
	return shares
}

// AttachSyncer привязывает syncer; возвращает функцию отвязки
func (p *Peer) AttachSyncer(s Syncer) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.syncers[id] = s

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.syncers, id)
	}
}

func (p *Peer) syncersLocked() []Syncer {
	syncers := make([]Syncer, 0, len(p.syncers))
	for _, s := range p.syncers {
		syncers = append(syncers, s)
	}
	return syncers
}

// SyncStatus агрегирует статусы всех привязанных syncers:
// partnerID -> share -> состояние session
func (p *Peer) SyncStatus() map[string]map[string]api.ShareSyncStatus {
	p.mu.RLock()
	syncers := p.syncersLocked()
	p.mu.RUnlock()

	status := make(map[string]map[string]api.ShareSyncStatus, len(syncers))
	for _, s := range syncers {
		partner := s.PartnerID()
		if partner == "" {
			continue
		}
		status[partner] = s.Status()
	}
	return status
}
