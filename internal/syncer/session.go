package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iudanet/docbowl/internal/bowl"
	"github.com/iudanet/docbowl/internal/validation"
	"github.com/iudanet/docbowl/pkg/api"
)

// maxBackoffFactor ограничивает экспоненциальный backoff session
// при сетевых ошибках (множитель к poll interval)
const maxBackoffFactor = 8

// Session тянет документы одного общего share от партнера.
// Сетевые ошибки не фатальны: session отступает и повторяет
// до остановки координатора.
type Session struct {
	share string
	local *bowl.Bowl
	coord *Coordinator

	mu sync.Mutex
	// partnerMaxLocalIndexSoFar - наибольший LocalIndex партнера,
	// который session когда-либо наблюдала в батчах
	partnerMax int64
	// pulled - число документов, принятых за этот запуск
	pulled int64
	// lastSeenPartnerIndex - highestLocalIndex партнера из последнего опроса
	lastSeenPartnerIndex int64
	lastErr              string
	caughtUp             bool
	stopped              bool

	wake   chan struct{}
	cancel context.CancelFunc
}

func newSession(share string, local *bowl.Bowl, coord *Coordinator) *Session {
	return &Session{
		share: share,
		local: local,
		coord: coord,
		wake:  make(chan struct{}, 1),
	}
}

// noteAdvertised фиксирует push-уведомление партнера о новом
// highestLocalIndex и будит session
func (s *Session) noteAdvertised(highest int64) {
	s.mu.Lock()
	if highest > s.lastSeenPartnerIndex {
		s.lastSeenPartnerIndex = highest
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// stop останавливает цикл session; в полете остается не более одного RPC,
// он отменяется вместе с контекстом
func (s *Session) stop() {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// status возвращает снимок состояния session
func (s *Session) status() api.ShareSyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return api.ShareSyncStatus{
		Share:               s.share,
		Pulled:              s.pulled,
		CaughtUp:            s.caughtUp,
		PartnerHighestIndex: s.lastSeenPartnerIndex,
		LocalHighestIndex:   s.local.HighestLocalIndex(),
		Error:               s.lastErr,
	}
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.caughtUp = false
	s.mu.Unlock()
}

// run - основной цикл session: опрос состояния партнера, батчи getDocs,
// локальные upsert, публикация статуса. Не более одного RPC в полете.
func (s *Session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	logger := s.coord.logger.With("share", s.share)
	poll := s.coord.pollInterval
	retryDelay := poll

	for ctx.Err() == nil {
		var state api.GetShareStateResponse
		err := s.coord.conn.Call(ctx, api.MethodGetShareState, api.GetShareStateRequest{Share: s.share}, &state)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Failed to poll partner share state", "error", err)
			s.setError(err)
			s.coord.broadcastStatus(s)
			s.sleep(ctx, retryDelay)
			if retryDelay < maxBackoffFactor*poll {
				retryDelay *= 2
			}
			continue
		}
		retryDelay = poll

		s.mu.Lock()
		if state.HighestLocalIndex > s.lastSeenPartnerIndex {
			s.lastSeenPartnerIndex = state.HighestLocalIndex
		}
		partnerMax := s.partnerMax
		s.mu.Unlock()

		// Догнали партнера: засыпаем до push-уведомления или очередного опроса
		if partnerMax >= state.HighestLocalIndex {
			s.mu.Lock()
			s.caughtUp = true
			s.lastErr = ""
			s.mu.Unlock()
			s.coord.broadcastStatus(s)
			s.sleep(ctx, poll)
			continue
		}

		var docs api.GetDocsResponse
		err = s.coord.conn.Call(ctx, api.MethodGetDocs, api.GetDocsRequest{
			Share:     s.share,
			FromIndex: partnerMax,
			Limit:     s.coord.batchLimit,
		}, &docs)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Failed to pull documents", "error", err)
			s.setError(err)
			s.coord.broadcastStatus(s)
			s.sleep(ctx, retryDelay)
			if retryDelay < maxBackoffFactor*poll {
				retryDelay *= 2
			}
			continue
		}

		// Пустой батч при отставании: у партнера не осталось документов
		// выше нашей отметки (вытеснены или удалены) - помечаем догнанным
		if len(docs.Docs) == 0 {
			s.mu.Lock()
			s.partnerMax = state.HighestLocalIndex
			s.mu.Unlock()
			continue
		}

		var accepted int64
		maxIdx := partnerMax
		sweepNeeded := false

		for _, wireDoc := range docs.Docs {
			if wireDoc.LocalIndex > maxIdx {
				maxIdx = wireDoc.LocalIndex
			}

			// Получатель перепроверяет подпись и назначает свой LocalIndex
			doc := wireDoc.ToModel()
			result, err := s.local.Upsert(ctx, doc)
			switch {
			case errors.Is(err, bowl.ErrBowlClosed):
				return
			case errors.Is(err, validation.ErrInvalidDocument):
				// Невалидный документ (в т.ч. битая подпись): пропускаем и едем дальше
				logger.Warn("Rejected invalid document from partner", "path", wireDoc.Path, "error", err)
				continue
			case err != nil:
				logger.Warn("Failed to ingest document", "path", wireDoc.Path, "error", err)
				continue
			}

			if result.Accepted() {
				accepted++
				// Истекший документ принят ради монотонности LocalIndex
				// и немедленно удаляется sweep'ом
				if doc.DeleteAfter > 0 {
					sweepNeeded = true
				}
			}
		}

		if sweepNeeded {
			s.local.SweepExpiredNow(ctx)
		}

		s.mu.Lock()
		s.partnerMax = maxIdx
		s.pulled += accepted
		s.caughtUp = false
		s.lastErr = ""
		s.mu.Unlock()
		s.coord.broadcastStatus(s)
	}
}

// sleep ждет wake, таймаута или отмены
func (s *Session) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-s.wake:
	case <-timer.C:
	}
}
