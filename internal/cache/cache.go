// Package cache реализует read-through memoizer над replica.
// Повторные идентичные вызовы замкнутого читающего API возвращают
// сохраненный результат; любая успешная запись в replica инвалидирует
// кеш и запускает пересчет удерживаемых ключей.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iudanet/docbowl/internal/bowl"
	"github.com/iudanet/docbowl/internal/models"
)

// ErrCacheClosed возвращается при операции над закрытым кешем
var ErrCacheClosed = errors.New("cache is closed")

// entry - одна закешированная пара (операция, аргументы)
type entry struct {
	value   any
	err     error
	compute func() (any, error)
	at      time.Time
}

// ReplicaCache - memoizer над bowl.Bowl
type ReplicaCache struct {
	replica *bowl.Bowl
	ttl     time.Duration

	mu          sync.Mutex
	entries     map[string]*entry
	version     int64
	closed      bool
	subs        map[int64]func(key string)
	nextSubID   int64
	unsubscribe func()
}

// New создает кеш над replica.
// ttl <= 0 означает бесконечное время жизни записей.
func New(replica *bowl.Bowl, ttl time.Duration) *ReplicaCache {
	c := &ReplicaCache{
		replica: replica,
		ttl:     ttl,
		entries: make(map[string]*entry),
		subs:    make(map[int64]func(string)),
	}

	// Любая принятая запись повышает версию и планирует пересчет
	c.unsubscribe = replica.OnWrite(func(models.WriteEvent) {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.version++
		keys := make([]string, 0, len(c.entries))
		for k := range c.entries {
			keys = append(keys, k)
		}
		c.mu.Unlock()

		go c.recompute(keys)
	})

	return c
}

// Version возвращает счетчик версий: число принятых записей,
// наблюдавшихся кешем
func (c *ReplicaCache) Version() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// OnCacheUpdated регистрирует подписчика уведомлений о пересчете.
// Подписчик получает одно уведомление на каждый обновленный ключ.
// Возвращает функцию отписки.
func (c *ReplicaCache) OnCacheUpdated(fn func(key string)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// recompute пересчитывает перечисленные ключи и рассылает уведомления.
// Закрытие кеша прерывает пересчет.
func (c *ReplicaCache) recompute(keys []string) {
	for _, key := range keys {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		e, ok := c.entries[key]
		c.mu.Unlock()
		if !ok {
			continue
		}

		value, err := e.compute()

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if cur, ok := c.entries[key]; ok {
			cur.value = value
			cur.err = err
			cur.at = time.Now()
		}
		subs := make([]func(string), 0, len(c.subs))
		for _, fn := range c.subs {
			subs = append(subs, fn)
		}
		c.mu.Unlock()

		for _, fn := range subs {
			fn(key)
		}
	}
}

// get возвращает закешированное значение или вычисляет и сохраняет его
func (c *ReplicaCache) get(key string, compute func() (any, error)) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCacheClosed
	}

	if e, ok := c.entries[key]; ok {
		if c.ttl <= 0 || time.Since(e.at) < c.ttl {
			value, err := e.value, e.err
			c.mu.Unlock()
			return value, err
		}
		// Запись истекла по TTL - пересчитываем
		delete(c.entries, key)
	}
	c.mu.Unlock()

	value, err := compute()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCacheClosed
	}
	c.entries[key] = &entry{value: value, err: err, compute: compute, at: time.Now()}
	return value, err
}

func docsResult(v any, err error) ([]*models.Document, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]*models.Document), nil
}

// GetAllDocs - кешированный bowl.GetAllDocs
func (c *ReplicaCache) GetAllDocs() ([]*models.Document, error) {
	return docsResult(c.get("getAllDocs", func() (any, error) {
		return c.replica.GetAllDocs()
	}))
}

// GetLatestDocs - кешированный bowl.GetLatestDocs
func (c *ReplicaCache) GetLatestDocs() ([]*models.Document, error) {
	return docsResult(c.get("getLatestDocs", func() (any, error) {
		return c.replica.GetLatestDocs()
	}))
}

// GetAllDocsAtPath - кешированный bowl.GetAllDocsAtPath
func (c *ReplicaCache) GetAllDocsAtPath(path string) ([]*models.Document, error) {
	return docsResult(c.get("getAllDocsAtPath:"+path, func() (any, error) {
		return c.replica.GetAllDocsAtPath(path)
	}))
}

// GetLatestDocAtPath - кешированный bowl.GetLatestDocAtPath
func (c *ReplicaCache) GetLatestDocAtPath(path string) (*models.Document, error) {
	v, err := c.get("getLatestDocAtPath:"+path, func() (any, error) {
		return c.replica.GetLatestDocAtPath(path)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*models.Document), nil
}

// QueryDocs - кешированный bowl.QueryDocs.
// Ключ - каноническая JSON-форма запроса.
func (c *ReplicaCache) QueryDocs(q bowl.Query) ([]*models.Document, error) {
	keyBytes, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to build cache key: %w", err)
	}
	return docsResult(c.get("queryDocs:"+string(keyBytes), func() (any, error) {
		return c.replica.QueryDocs(q)
	}))
}

// Close отписывается от replica и закрывает кеш.
// Все последующие операции возвращают ErrCacheClosed;
// незавершенные пересчеты прерываются.
func (c *ReplicaCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}
	c.closed = true
	c.entries = nil
	c.subs = map[int64]func(string){}
	unsub := c.unsubscribe
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	return nil
}
