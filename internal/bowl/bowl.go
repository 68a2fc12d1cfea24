// Package bowl реализует document bowl - упорядоченное индексированное
// хранилище подписанных документов одного share поверх драйвера.
package bowl

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/iudanet/docbowl/internal/crypto"
	"github.com/iudanet/docbowl/internal/driver"
	"github.com/iudanet/docbowl/internal/models"
	"github.com/iudanet/docbowl/internal/validation"
)

// NowFunc - источник времени bowl, микросекунды с эпохи.
// Инжектируется для тестов.
type NowFunc func() int64

// NowMicros - источник времени по умолчанию
func NowMicros() int64 {
	return time.Now().UnixMicro()
}

// DefaultSweepInterval - период фонового удаления истекших документов
const DefaultSweepInterval = time.Hour

// Config - настройки bowl; нулевые поля получают значения по умолчанию
type Config struct {
	Validator     validation.DocumentValidator
	Now           NowFunc
	Logger        *slog.Logger
	SweepInterval time.Duration
}

// Bowl - in-memory state machine над драйвером одного share.
// Все операции выполняются под одним мьютексом: upsert атомарен
// относительно других upsert и читающих запросов.
type Bowl struct {
	drv       driver.Driver
	validator validation.DocumentValidator
	now       NowFunc
	logger    *slog.Logger
	shareAddr string

	mu                sync.Mutex
	byLocalIndex      map[int64]*models.Document
	byPathAuthor      map[string]*models.Document
	byPath            map[string][]*models.Document // отсортированы newest-first
	highestLocalIndex int64
	followers         []*Follower
	writeSubs         map[int64]func(models.WriteEvent)
	nextSubID         int64
	closed            bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

func pathAuthorKey(path, author string) string {
	return path + "\x00" + author
}

// New создает bowl над драйвером: загружает документы, восстанавливает
// highestLocalIndex, удаляет истекшие и запускает периодический sweep.
func New(ctx context.Context, drv driver.Driver, cfg Config) (*Bowl, error) {
	if cfg.Validator == nil {
		cfg.Validator = validation.New()
	}
	if cfg.Now == nil {
		cfg.Now = NowMicros
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	b := &Bowl{
		drv:          drv,
		validator:    cfg.Validator,
		now:          cfg.Now,
		logger:       cfg.Logger.With("share", drv.ShareAddress()),
		shareAddr:    drv.ShareAddress(),
		byLocalIndex: make(map[int64]*models.Document),
		byPathAuthor: make(map[string]*models.Document),
		byPath:       make(map[string][]*models.Document),
		writeSubs:    make(map[int64]func(models.WriteEvent)),
		sweepStop:    make(chan struct{}),
		sweepDone:    make(chan struct{}),
	}

	docs, err := drv.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	highest, err := drv.HighestLocalIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover highest local index: %w", err)
	}
	b.highestLocalIndex = highest

	for _, doc := range docs {
		b.indexDoc(doc)
		if doc.LocalIndex > b.highestLocalIndex {
			b.highestLocalIndex = doc.LocalIndex
		}
	}

	// Начальный sweep: удаляем истекшие документы, накопившиеся офлайн
	b.mu.Lock()
	swept := b.sweepExpiredLocked(ctx)
	b.mu.Unlock()
	if swept > 0 {
		b.logger.Info("Swept expired documents on startup", "count", swept)
	}

	go b.sweepLoop(cfg.SweepInterval)

	return b, nil
}

// ShareAddress возвращает адрес share
func (b *Bowl) ShareAddress() string {
	return b.shareAddr
}

// HighestLocalIndex возвращает наибольший назначенный LocalIndex
func (b *Bowl) HighestLocalIndex() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.highestLocalIndex
}

// indexDoc вставляет документ во все три индекса (без вытеснения)
func (b *Bowl) indexDoc(doc *models.Document) {
	b.byLocalIndex[doc.LocalIndex] = doc
	b.byPathAuthor[pathAuthorKey(doc.Path, doc.Author)] = doc

	seq := append(b.byPath[doc.Path], doc)
	sort.Slice(seq, func(i, j int) bool {
		return models.ComparePathOrder(seq[i], seq[j]) < 0
	})
	b.byPath[doc.Path] = seq
}

// removeFromIndexes удаляет документ из всех трех индексов
func (b *Bowl) removeFromIndexes(doc *models.Document) {
	delete(b.byLocalIndex, doc.LocalIndex)
	delete(b.byPathAuthor, pathAuthorKey(doc.Path, doc.Author))

	seq := b.byPath[doc.Path]
	for i, d := range seq {
		if d == doc {
			seq = append(seq[:i], seq[i+1:]...)
			break
		}
	}
	if len(seq) == 0 {
		delete(b.byPath, doc.Path)
	} else {
		b.byPath[doc.Path] = seq
	}
}

// WriteInput - параметры локальной записи
type WriteInput struct {
	Path        string
	Content     string
	DeleteAfter int64 // микросекунды; обязателен для ephemeral путей
}

// Write создает документ от имени автора, подписывает его и выполняет Upsert.
// Timestamp выбирается как max(now, latestAtPath.Timestamp+1), чтобы новая
// запись победила по времени даже документы других авторов на этом path.
func (b *Bowl) Write(ctx context.Context, signer crypto.Signer, input WriteInput) (models.UpsertResult, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return models.UpsertInvalid, ErrBowlClosed
	}
	ts := b.now()
	if seq := b.byPath[input.Path]; len(seq) > 0 && seq[0].Timestamp >= ts {
		ts = seq[0].Timestamp + 1
	}
	b.mu.Unlock()

	doc := &models.Document{
		Path:          input.Path,
		Author:        signer.Address(),
		Timestamp:     ts,
		Content:       input.Content,
		ContentHash:   crypto.ContentHash(input.Content),
		ContentLength: int64(len(input.Content)),
		Format:        models.FormatDefault,
		DeleteAfter:   input.DeleteAfter,
	}

	// Подпись - единственная suspension point записи
	if err := signer.SignDocument(doc); err != nil {
		return models.UpsertInvalid, fmt.Errorf("failed to sign document: %w", err)
	}

	return b.Upsert(ctx, doc)
}

// Upsert проверяет документ и сохраняет его согласно правилам overwrite order.
// Возвращает UpsertInvalid вместе с ошибкой валидации (errors.Is по
// validation.ErrInvalidDocument); ошибки драйвера возвращаются как есть,
// bowl при этом остается работоспособным.
func (b *Bowl) Upsert(ctx context.Context, doc *models.Document) (models.UpsertResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return models.UpsertInvalid, ErrBowlClosed
	}

	if err := b.validator.ValidateDocument(doc, b.now()); err != nil {
		return models.UpsertInvalid, err
	}

	existing := b.byPathAuthor[pathAuthorKey(doc.Path, doc.Author)]
	if existing != nil {
		if existing.SameVersionAs(doc) {
			return models.UpsertAlreadyHadIt, nil
		}
		if existing.IsNewerThan(doc) {
			return models.UpsertObsolete, nil
		}
	}

	stored := doc.Clone()
	stored.LocalIndex = b.highestLocalIndex + 1

	if err := b.drv.Put(ctx, stored); err != nil {
		return models.UpsertInvalid, fmt.Errorf("driver put failed: %w", err)
	}

	// Прежний latest на path фиксируем до изменения индексов
	var prevLatest *models.Document
	if seq := b.byPath[doc.Path]; len(seq) > 0 {
		prevLatest = seq[0]
	}

	b.highestLocalIndex = stored.LocalIndex
	if existing != nil {
		b.removeFromIndexes(existing)
	}
	b.indexDoc(stored)

	isLatest := b.byPath[stored.Path][0] == stored

	result := models.UpsertAcceptedButNotLatest
	if isLatest {
		result = models.UpsertAcceptedAndLatest
	}

	event := models.WriteEvent{
		Doc:                   stored,
		IsLatest:              isLatest,
		PreviousDocSameAuthor: existing,
	}
	if isLatest && prevLatest != nil {
		event.PreviousLatestDoc = prevLatest
	}

	b.dispatchLocked(event)

	return result, nil
}

// dispatchLocked рассылает write event подписчикам и продвигает followers.
// Вызывается под b.mu: синхронные callbacks не должны обращаться к bowl.
func (b *Bowl) dispatchLocked(event models.WriteEvent) {
	for _, fn := range b.writeSubs {
		fn(event)
	}
	for _, f := range b.followers {
		f.onUpsertLocked(event.Doc)
	}
}

// OnWrite регистрирует подписчика write events.
// Callback вызывается синхронно внутри Upsert и обязан быть быстрым.
// Возвращает функцию отписки.
func (b *Bowl) OnWrite(fn func(models.WriteEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	b.writeSubs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.writeSubs, id)
	}
}

// GetAllDocs возвращает все хранимые документы в path order
func (b *Bowl) GetAllDocs() ([]*models.Document, error) {
	return b.QueryDocs(Query{History: HistoryAll})
}

// GetLatestDocs возвращает latest документ каждого path в path order
func (b *Bowl) GetLatestDocs() ([]*models.Document, error) {
	return b.QueryDocs(Query{History: HistoryLatest})
}

// GetAllDocsAtPath возвращает все документы на path, newest-first
func (b *Bowl) GetAllDocsAtPath(path string) ([]*models.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBowlClosed
	}

	now := b.now()
	var docs []*models.Document
	for _, doc := range b.byPath[path] {
		if !doc.Expired(now) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// GetLatestDocAtPath возвращает latest документ на path (nil, если path пуст)
func (b *Bowl) GetLatestDocAtPath(path string) (*models.Document, error) {
	docs, err := b.GetAllDocsAtPath(path)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// DocsSince возвращает до limit документов с LocalIndex > fromIndex
// по возрастанию LocalIndex. Используется sync RPC поверхностью.
func (b *Bowl) DocsSince(fromIndex int64, limit int) ([]*models.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBowlClosed
	}

	indexes := make([]int64, 0, len(b.byLocalIndex))
	for idx := range b.byLocalIndex {
		if idx > fromIndex {
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
	return docs, nil
}

// sweepLoop периодически удаляет истекшие документы
func (b *Bowl) sweepLoop(interval time.Duration) {
	defer close(b.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			if b.closed {
				b.mu.Unlock()
				return
			}
			swept := b.sweepExpiredLocked(context.Background())
			b.mu.Unlock()
			if swept > 0 {
				b.logger.Info("Swept expired documents", "count", swept)
			}
		case <-b.sweepStop:
			return
		}
	}
}

// sweepExpiredLocked удаляет истекшие документы из индексов и драйвера.
// Вызывается под b.mu. Возвращает число удаленных документов.
func (b *Bowl) sweepExpiredLocked(ctx context.Context) int {
	now := b.now()

	var expired []*models.Document
	for _, doc := range b.byLocalIndex {
		if doc.Expired(now) {
			expired = append(expired, doc)
		}
	}

	for _, doc := range expired {
		if err := b.drv.Delete(ctx, doc.Path, doc.Author); err != nil && err != driver.ErrDocNotFound {
			b.logger.Error("Failed to delete expired document", "path", doc.Path, "error", err)
			continue
		}
		b.removeFromIndexes(doc)
	}

	return len(expired)
}

// SweepExpiredNow принудительно запускает sweep (для приема истекших
// документов по sync: принять, затем немедленно удалить)
func (b *Bowl) SweepExpiredNow(ctx context.Context) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	return b.sweepExpiredLocked(ctx)
}

// Close останавливает sweep, переводит followers в quitting и закрывает драйвер.
// Повторный Close возвращает ErrBowlClosed.
func (b *Bowl) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBowlClosed
	}
	b.closed = true
	close(b.sweepStop)

	followers := b.followers
	b.followers = nil
	b.writeSubs = map[int64]func(models.WriteEvent){}
	b.mu.Unlock()

	for _, f := range followers {
		f.quit()
	}

	<-b.sweepDone

	if err := b.drv.Close(); err != nil {
		return fmt.Errorf("failed to close driver: %w", err)
	}
	return nil
}
