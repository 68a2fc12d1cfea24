package bowl

import (
	"sort"
	"strings"

	"github.com/iudanet/docbowl/internal/models"
)

// HistoryMode выбирает базовое множество запроса
type HistoryMode int

const (
	// HistoryLatest - только latest документ каждого path (по умолчанию)
	HistoryLatest HistoryMode = iota
	// HistoryAll - все хранимые документы
	HistoryAll
)

// OrderBy задает ось и направление сортировки результата
type OrderBy int

const (
	// OrderPathAsc - path ASC с tie-break timestamp DESC, signature DESC (по умолчанию)
	OrderPathAsc OrderBy = iota
	// OrderPathDesc - обратный path order
	OrderPathDesc
	// OrderLocalIndexAsc - по возрастанию LocalIndex
	OrderLocalIndexAsc
	// OrderLocalIndexDesc - по убыванию LocalIndex
	OrderLocalIndexDesc
)

// Filter - замкнутый набор фильтров; все заданные условия объединяются по AND.
// Строковые поля с пустым значением считаются незаданными,
// числовые задаются указателем.
type Filter struct {
	Path            string `json:"path,omitempty"`
	PathStartsWith  string `json:"path_starts_with,omitempty"`
	PathEndsWith    string `json:"path_ends_with,omitempty"`
	Author          string `json:"author,omitempty"`
	Timestamp       *int64 `json:"timestamp,omitempty"`
	TimestampGt     *int64 `json:"timestamp_gt,omitempty"`
	TimestampLt     *int64 `json:"timestamp_lt,omitempty"`
	ContentLength   *int64 `json:"content_length,omitempty"`
	ContentLengthGt *int64 `json:"content_length_gt,omitempty"`
	ContentLengthLt *int64 `json:"content_length_lt,omitempty"`
}

// Match проверяет документ против всех заданных условий фильтра
func (f *Filter) Match(doc *models.Document) bool {
	if f == nil {
		return true
	}
	if f.Path != "" && doc.Path != f.Path {
		return false
	}
	if f.PathStartsWith != "" && !strings.HasPrefix(doc.Path, f.PathStartsWith) {
		return false
	}
	if f.PathEndsWith != "" && !strings.HasSuffix(doc.Path, f.PathEndsWith) {
		return false
	}
	if f.Author != "" && doc.Author != f.Author {
		return false
	}
	if f.Timestamp != nil && doc.Timestamp != *f.Timestamp {
		return false
	}
	if f.TimestampGt != nil && doc.Timestamp <= *f.TimestampGt {
		return false
	}
	if f.TimestampLt != nil && doc.Timestamp >= *f.TimestampLt {
		return false
	}
	if f.ContentLength != nil && doc.ContentLength != *f.ContentLength {
		return false
	}
	if f.ContentLengthGt != nil && doc.ContentLength <= *f.ContentLengthGt {
		return false
	}
	if f.ContentLengthLt != nil && doc.ContentLength >= *f.ContentLengthLt {
		return false
	}
	return true
}

// Query - замкнутая форма запроса к bowl
type Query struct {
	Filter *Filter `json:"filter,omitempty"`

	// StartAtPath - инклюзивная нижняя граница для path-осей (ASC),
	// инклюзивная верхняя для DESC. Игнорируется на localIndex-осях.
	StartAtPath string `json:"start_at_path,omitempty"`

	// StartAtLocalIndex - аналогичная граница для localIndex-осей
	StartAtLocalIndex *int64 `json:"start_at_local_index,omitempty"`

	History HistoryMode `json:"history"`
	OrderBy OrderBy     `json:"order_by"`

	// Limit - максимальное число документов в результате; 0 = без ограничения
	Limit int `json:"limit,omitempty"`
}

// QueryDocs выполняет запрос: базовое множество -> сортировка ->
// пропуск до startAt -> фильтр -> limit
func (b *Bowl) QueryDocs(q Query) ([]*models.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBowlClosed
	}

	now := b.now()

	// Базовое множество; истекшие документы невидимы еще до sweep
	var docs []*models.Document
	switch q.History {
	case HistoryAll:
		docs = make([]*models.Document, 0, len(b.byLocalIndex))
		for _, doc := range b.byLocalIndex {
			if !doc.Expired(now) {
				docs = append(docs, doc)
			}
		}
	default:
		docs = make([]*models.Document, 0, len(b.byPath))
		for _, seq := range b.byPath {
			for _, doc := range seq {
				if !doc.Expired(now) {
					docs = append(docs, doc)
					break
				}
			}
		}
	}

	sortDocs(docs, q.OrderBy)

	result := make([]*models.Document, 0, len(docs))
	for _, doc := range docs {
		if !startAtReached(doc, q) {
			continue
		}
		if !q.Filter.Match(doc) {
			continue
		}
		result = append(result, doc)
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}

	return result, nil
}

// QueryPaths возвращает уникальные paths результата запроса по возрастанию
// (по убыванию при OrderBy = path DESC)
func (b *Bowl) QueryPaths(q Query) ([]string, error) {
	docs, err := b.QueryDocs(q)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(docs))
	paths := make([]string, 0, len(docs))
	for _, doc := range docs {
		if !seen[doc.Path] {
			seen[doc.Path] = true
			paths = append(paths, doc.Path)
		}
	}

	sort.Strings(paths)
	if q.OrderBy == OrderPathDesc {
		for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
			paths[i], paths[j] = paths[j], paths[i]
		}
	}
	return paths, nil
}

// QueryAuthors возвращает уникальных авторов результата запроса по возрастанию
func (b *Bowl) QueryAuthors(q Query) ([]string, error) {
	docs, err := b.QueryDocs(q)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(docs))
	authors := make([]string, 0, len(docs))
	for _, doc := range docs {
		if !seen[doc.Author] {
			seen[doc.Author] = true
			authors = append(authors, doc.Author)
		}
	}

	sort.Strings(authors)
	return authors, nil
}

func sortDocs(docs []*models.Document, order OrderBy) {
	switch order {
	case OrderPathDesc:
		sort.Slice(docs, func(i, j int) bool {
			return models.ComparePathOrder(docs[i], docs[j]) > 0
		})
	case OrderLocalIndexAsc:
		sort.Slice(docs, func(i, j int) bool {
			return docs[i].LocalIndex < docs[j].LocalIndex
		})
	case OrderLocalIndexDesc:
		sort.Slice(docs, func(i, j int) bool {
			return docs[i].LocalIndex > docs[j].LocalIndex
		})
	default:
		sort.Slice(docs, func(i, j int) bool {
			return models.ComparePathOrder(docs[i], docs[j]) < 0
		})
	}
}

// startAtReached проверяет, достиг ли документ границы startAt.
// Граница действует только если её ось совпадает с осью сортировки.
func startAtReached(doc *models.Document, q Query) bool {
	switch q.OrderBy {
	case OrderPathAsc:
		return q.StartAtPath == "" || doc.Path >= q.StartAtPath
	case OrderPathDesc:
		return q.StartAtPath == "" || doc.Path <= q.StartAtPath
	case OrderLocalIndexAsc:
		return q.StartAtLocalIndex == nil || doc.LocalIndex >= *q.StartAtLocalIndex
	case OrderLocalIndexDesc:
		return q.StartAtLocalIndex == nil || doc.LocalIndex <= *q.StartAtLocalIndex
	default:
		return true
	}
}
