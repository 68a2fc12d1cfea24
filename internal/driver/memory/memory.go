// Package memory реализует драйвер в памяти.
// Используется в тестах и для временных replicas без персистентности.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/iudanet/docbowl/internal/driver"
	"github.com/iudanet/docbowl/internal/models"
)

// Driver хранит документы одного share в памяти
type Driver struct {
	docs      map[string]*models.Document // map[path+"\x00"+author]doc
	shareAddr string
	mu        sync.RWMutex
	closed    bool
}

// New создает новый in-memory драйвер для share
func New(shareAddr string) *Driver {
	return &Driver{
		shareAddr: shareAddr,
		docs:      make(map[string]*models.Document),
	}
}

func key(path, author string) string {
	return path + "\x00" + author
}

// ShareAddress возвращает адрес share
func (d *Driver) ShareAddress() string {
	return d.shareAddr
}

// LoadAll возвращает все документы по возрастанию LocalIndex
func (d *Driver) LoadAll(ctx context.Context) ([]*models.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, driver.ErrDriverClosed
	}

	docs := make([]*models.Document, 0, len(d.docs))
	for _, doc := range d.docs {
		docs = append(docs, doc.Clone())
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].LocalIndex < docs[j].LocalIndex
	})
	return docs, nil
}

// HighestLocalIndex возвращает наибольший назначенный LocalIndex
func (d *Driver) HighestLocalIndex(ctx context.Context) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, driver.ErrDriverClosed
	}

	var highest int64
	for _, doc := range d.docs {
		if doc.LocalIndex > highest {
			highest = doc.LocalIndex
		}
	}
	return highest, nil
}

// Put сохраняет документ, замещая существующий с тем же (path, author)
func (d *Driver) Put(ctx context.Context, doc *models.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return driver.ErrDriverClosed
	}

	d.docs[key(doc.Path, doc.Author)] = doc.Clone()
	return nil
}

// Delete удаляет документ (path, author)
func (d *Driver) Delete(ctx context.Context, path, author string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return driver.ErrDriverClosed
	}

	k := key(path, author)
	if _, ok := d.docs[k]; !ok {
		return driver.ErrDocNotFound
	}
	delete(d.docs, k)
	return nil
}

// Close помечает драйвер закрытым
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.docs = nil
	return nil
}
