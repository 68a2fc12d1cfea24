// Package boltdb реализует персистентный драйвер поверх BoltDB.
// Один файл BoltDB хранит документы одного share.
package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/docbowl/internal/driver"
	"github.com/iudanet/docbowl/internal/models"
)

var (
	// bucketDocs хранит документы по ключу LocalIndex (8 байт big-endian)
	bucketDocs = []byte("docs")
	// bucketPathAuthor - индекс (path, author) -> LocalIndex
	bucketPathAuthor = []byte("path_author")
	// bucketMeta хранит адрес share для проверки при открытии
	bucketMeta = []byte("meta")

	metaShareKey = []byte("share_address")
)

// Driver - BoltDB реализация driver.Driver
type Driver struct {
	db        *bbolt.DB
	shareAddr string
}

// New открывает BoltDB драйвер для share.
// Если файл уже существовал, адрес share в нем должен совпадать.
func New(ctx context.Context, dbPath, shareAddr string) (*Driver, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	d := &Driver{db: db, shareAddr: shareAddr}

	if err := d.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return d, nil
}

// initBuckets создает buckets и проверяет принадлежность файла share
func (d *Driver) initBuckets() error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketDocs, bucketPathAuthor, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketMeta)
		stored := meta.Get(metaShareKey)
		if stored == nil {
			return meta.Put(metaShareKey, []byte(d.shareAddr))
		}
		if !bytes.Equal(stored, []byte(d.shareAddr)) {
			return fmt.Errorf("database belongs to share %s, not %s", stored, d.shareAddr)
		}
		return nil
	})
}

// ShareAddress возвращает адрес share
func (d *Driver) ShareAddress() string {
	return d.shareAddr
}

// Close закрывает базу
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func indexKey(localIndex int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(localIndex))
	return key
}

func pathAuthorKey(path, author string) []byte {
	return []byte(path + "\x00" + author)
}

// LoadAll возвращает все документы по возрастанию LocalIndex.
// Ключи bucketDocs отсортированы лексикографически, что для big-endian
// представления совпадает с числовым порядком.
func (d *Driver) LoadAll(ctx context.Context) ([]*models.Document, error) {
	if d.db == nil {
		return nil, driver.ErrDriverClosed
	}

	var docs []*models.Document

	err := d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			doc, err := driver.UnmarshalDoc(v)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	return docs, nil
}

// HighestLocalIndex возвращает наибольший назначенный LocalIndex
func (d *Driver) HighestLocalIndex(ctx context.Context) (int64, error) {
	if d.db == nil {
		return 0, driver.ErrDriverClosed
	}

	var highest int64

	err := d.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketDocs).Cursor()
		k, _ := c.Last()
		if k != nil {
			highest = int64(binary.BigEndian.Uint64(k))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read highest local index: %w", err)
	}

	return highest, nil
}

// Put сохраняет документ, замещая существующий с тем же (path, author)
func (d *Driver) Put(ctx context.Context, doc *models.Document) error {
	if d.db == nil {
		return driver.ErrDriverClosed
	}

	data, err := driver.MarshalDoc(doc)
	if err != nil {
		return err
	}

	err = d.db.Update(func(tx *bbolt.Tx) error {
		docsB := tx.Bucket(bucketDocs)
		idxB := tx.Bucket(bucketPathAuthor)

		paKey := pathAuthorKey(doc.Path, doc.Author)

		// Удаляем вытесненный документ того же (path, author)
		if old := idxB.Get(paKey); old != nil {
			if err := docsB.Delete(old); err != nil {
				return fmt.Errorf("failed to delete replaced document: %w", err)
			}
		}

		if err := docsB.Put(indexKey(doc.LocalIndex), data); err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}
		if err := idxB.Put(paKey, indexKey(doc.LocalIndex)); err != nil {
			return fmt.Errorf("failed to update path_author index: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put transaction failed: %w", err)
	}

	return nil
}

// Delete удаляет документ (path, author)
func (d *Driver) Delete(ctx context.Context, path, author string) error {
	if d.db == nil {
		return driver.ErrDriverClosed
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		docsB := tx.Bucket(bucketDocs)
		idxB := tx.Bucket(bucketPathAuthor)

		paKey := pathAuthorKey(path, author)
		idx := idxB.Get(paKey)
		if idx == nil {
			return driver.ErrDocNotFound
		}

		if err := docsB.Delete(idx); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		if err := idxB.Delete(paKey); err != nil {
			return fmt.Errorf("failed to delete index entry: %w", err)
		}
		return nil
	})
	if err != nil {
		if err == driver.ErrDocNotFound {
			return err
		}
		return fmt.Errorf("delete transaction failed: %w", err)
	}

	return nil
}
