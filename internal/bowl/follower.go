package bowl

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/iudanet/docbowl/internal/models"
)

// FollowerBatchSize - размер батча асинхронного follower.
// Между батчами follower уступает планировщик, чтобы не блокировать runtime.
const FollowerBatchSize = 40

// FollowerState - состояние follower
type FollowerState int

const (
	// FollowerSleeping - догнал highestLocalIndex и ждет новых документов
	FollowerSleeping FollowerState = iota
	// FollowerRunning - обрабатывает документы
	FollowerRunning
	// FollowerQuitting - терминальное состояние после Unsubscribe
	FollowerQuitting
)

func (s FollowerState) String() string {
	switch s {
	case FollowerSleeping:
		return "sleeping"
	case FollowerRunning:
		return "running"
	case FollowerQuitting:
		return "quitting"
	default:
		return "unknown"
	}
}

// DocCallback вызывается для каждого принятого документа в порядке LocalIndex
type DocCallback func(doc *models.Document) error

// FollowerConfig - параметры подписки
type FollowerConfig struct {
	// NextIndex - LocalIndex, начиная с которого follower наблюдает документы.
	// 0 трактуется как 1 (с самого начала).
	NextIndex int64

	// OnError получает ошибки callback; nil - ошибки логируются bowl
	OnError func(error)
}

// Follower - подписчик, продвигаемый вдоль последовательности LocalIndex.
// Ссылка на bowl - это lookup handle; Unsubscribe разрывает её.
type Follower struct {
	fn      DocCallback
	onError func(error)

	mu        sync.Mutex
	bowl      *Bowl
	state     FollowerState
	nextIndex int64
	async     bool

	wake chan struct{}
	done chan struct{}
}

// State возвращает текущее состояние follower
func (f *Follower) State() FollowerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// NextIndex возвращает LocalIndex следующего ожидаемого документа
func (f *Follower) NextIndex() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextIndex
}

// setRunning переводит follower в running.
// Переход running -> running - ошибка программиста.
func (f *Follower) setRunning() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FollowerQuitting {
		return
	}
	if f.state == FollowerRunning {
		panic("follower: transition into running while already running")
	}
	f.state = FollowerRunning
}

func (f *Follower) setSleeping() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FollowerQuitting {
		f.state = FollowerSleeping
	}
}

func (f *Follower) quitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == FollowerQuitting
}

// quit переводит follower в терминальное состояние и будит его задачу
func (f *Follower) quit() {
	f.mu.Lock()
	if f.state == FollowerQuitting {
		f.mu.Unlock()
		return
	}
	f.state = FollowerQuitting
	f.bowl = nil
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Unsubscribe отписывает follower: текущий батч заметит флаг
// перед следующим callback и остановится
func (f *Follower) Unsubscribe() {
	f.mu.Lock()
	b := f.bowl
	f.mu.Unlock()

	if b != nil {
		b.removeFollower(f)
	}
	f.quit()
}

// Done возвращает канал, закрываемый после завершения задачи
// асинхронного follower. У синхронного follower канал закрыт сразу.
func (f *Follower) Done() <-chan struct{} {
	return f.done
}

func (f *Follower) reportError(err error) {
	if f.onError != nil {
		f.onError(err)
		return
	}
	f.mu.Lock()
	b := f.bowl
	f.mu.Unlock()
	if b != nil {
		b.logger.Error("Follower callback failed", "error", err)
	}
}

// onUpsertLocked продвигает follower на только что принятый документ.
// Вызывается bowl под его мьютексом.
func (f *Follower) onUpsertLocked(doc *models.Document) {
	if f.async {
		// Будим задачу follower; доставка произойдет батчем
		select {
		case f.wake <- struct{}{}:
		default:
		}
		return
	}

	f.mu.Lock()
	if f.state == FollowerQuitting || doc.LocalIndex < f.nextIndex {
		f.mu.Unlock()
		return
	}
	f.nextIndex = doc.LocalIndex + 1
	f.mu.Unlock()

	if err := f.fn(doc); err != nil {
		f.reportError(fmt.Errorf("follower callback failed at index %d: %w", doc.LocalIndex, err))
	}
}

// SubscribeSync регистрирует синхронный follower.
// До возврата из метода callback вызывается для каждого хранимого документа
// с LocalIndex >= NextIndex; далее каждый принятый upsert вызывает callback
// inline до возврата из Upsert. Callback обязан быть дешевым и неблокирующим
// и не должен обращаться к методам bowl.
func (b *Bowl) SubscribeSync(fn DocCallback, cfg FollowerConfig) (*Follower, error) {
	if cfg.NextIndex <= 0 {
		cfg.NextIndex = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBowlClosed
	}

	f := &Follower{
		fn:        fn,
		onError:   cfg.OnError,
		bowl:      b,
		state:     FollowerSleeping,
		nextIndex: cfg.NextIndex,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	close(f.done)

	// Catch-up: прогоняем callback по всем хранимым документам с
	// LocalIndex >= nextIndex до возврата из регистрации
	for _, doc := range b.docsFromLocked(f.nextIndex, 0) {
		f.nextIndex = doc.LocalIndex + 1
		if err := fn(doc); err != nil {
			return nil, fmt.Errorf("follower callback failed during catch-up at index %d: %w", doc.LocalIndex, err)
		}
	}

	b.followers = append(b.followers, f)
	return f, nil
}

// SubscribeAsync регистрирует асинхронный follower и сразу возвращается.
// Follower обрабатывает документы батчами по FollowerBatchSize на
// кооперативной задаче, засыпая по достижении highestLocalIndex.
func (b *Bowl) SubscribeAsync(fn DocCallback, cfg FollowerConfig) (*Follower, error) {
	if cfg.NextIndex <= 0 {
		cfg.NextIndex = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBowlClosed
	}

	f := &Follower{
		fn:        fn,
		onError:   cfg.OnError,
		bowl:      b,
		state:     FollowerSleeping,
		nextIndex: cfg.NextIndex,
		async:     true,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	b.followers = append(b.followers, f)

	go f.run(b)
	return f, nil
}

// run - цикл асинхронного follower: sleeping -> running -> sleeping,
// с выходом по quitting
func (f *Follower) run(b *Bowl) {
	defer close(f.done)

	for {
		if f.quitting() {
			return
		}

		f.mu.Lock()
		next := f.nextIndex
		f.mu.Unlock()

		batch := b.docsFrom(next, FollowerBatchSize)

		if len(batch) == 0 {
			f.setSleeping()
			<-f.wake
			continue
		}

		f.setRunning()
		for _, doc := range batch {
			// Отписка наблюдается до следующего callback
			if f.quitting() {
				return
			}
			f.mu.Lock()
			f.nextIndex = doc.LocalIndex + 1
			f.mu.Unlock()

			if err := f.fn(doc); err != nil {
				f.reportError(fmt.Errorf("follower callback failed at index %d: %w", doc.LocalIndex, err))
			}
		}
		f.setSleeping()

		// Yield между батчами, чтобы не монополизировать планировщик
		runtime.Gosched()
	}
}

// docsFrom возвращает до limit хранимых документов с LocalIndex >= from
// по возрастанию LocalIndex
func (b *Bowl) docsFrom(from int64, limit int) []*models.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	return b.docsFromLocked(from, limit)
}

func (b *Bowl) docsFromLocked(from int64, limit int) []*models.Document {
	indexes := make([]int64, 0, len(b.byLocalIndex))
	for idx := range b.byLocalIndex {
		if idx >= from {
			indexes = append(indexes, idx)
		}
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	if limit > 0 && len(indexes) > limit {
		indexes = indexes[:limit]
	}

	docs := make([]*models.Document, 0, len(indexes))
	for _, idx := range indexes {
		docs = append(docs, b.byLocalIndex[idx])
	}
	return docs
}

// removeFollower удаляет follower из списка bowl
func (b *Bowl) removeFollower(f *Follower) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.followers {
		if existing == f {
			b.followers = append(b.followers[:i], b.followers[i+1:]...)
			return
		}
	}
}
