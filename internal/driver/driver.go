package driver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iudanet/docbowl/internal/models"
)

//go:generate moq -out driver_mock.go . Driver

// Driver определяет контракт персистентного бэкенда для одного share.
// Bowl владеет драйвером эксклюзивно: два драйвера над одним и тем же
// хранилищем - неопределенное поведение.
type Driver interface {
	// ShareAddress возвращает адрес share, которому принадлежит хранилище
	ShareAddress() string

	// LoadAll возвращает все сохраненные документы по возрастанию LocalIndex.
	// Используется bowl при инициализации для восстановления индексов.
	LoadAll(ctx context.Context) ([]*models.Document, error)

	// HighestLocalIndex возвращает наибольший назначенный LocalIndex (0, если документов нет).
	// Персистентные драйверы обязаны восстанавливать его при открытии.
	HighestLocalIndex(ctx context.Context) (int64, error)

	// Put сохраняет документ, замещая существующий с тем же (path, author).
	// LocalIndex документа уже назначен bowl.
	Put(ctx context.Context, doc *models.Document) error

	// Delete удаляет документ (path, author). Используется expiry sweep.
	// Возвращает ErrDocNotFound, если документа нет.
	Delete(ctx context.Context, path, author string) error

	// Close освобождает ресурсы хранилища
	Close() error
}

// docRecord - сериализуемое представление документа вместе с LocalIndex.
// models.Document не сериализует LocalIndex (он не подписан), но драйверу
// он нужен для восстановления порядка.
type docRecord struct {
	Doc        *models.Document `json:"doc"`
	LocalIndex int64            `json:"local_index"`
}

// MarshalDoc сериализует документ для хранения в KV-драйвере
func MarshalDoc(doc *models.Document) ([]byte, error) {
	data, err := json.Marshal(docRecord{Doc: doc, LocalIndex: doc.LocalIndex})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// UnmarshalDoc десериализует документ из KV-драйвера
func UnmarshalDoc(data []byte) (*models.Document, error) {
	var rec docRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	if rec.Doc == nil {
		return nil, fmt.Errorf("document record has no doc")
	}
	rec.Doc.LocalIndex = rec.LocalIndex
	return rec.Doc, nil
}
