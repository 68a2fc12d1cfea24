package api

import "github.com/iudanet/docbowl/internal/models"

// Методы sync RPC поверхности
const (
	MethodSaltedHandshake = "saltedHandshake"
	MethodAllShareStates  = "allShareStates"
	MethodGetShareState   = "getShareState"
	MethodGetDocs         = "getDocs"
)

// GetDocsMaxLimit - максимальный размер батча getDocs
const GetDocsMaxLimit = 10

// Document - документ на проводе.
// LocalIndex передается как подсказка о состоянии партнера;
// получатель обязан перепроверить подпись и назначить собственный LocalIndex.
type Document struct {
	Path          string `json:"path"`
	Author        string `json:"author"`
	Content       string `json:"content"`
	ContentHash   string `json:"content_hash"`
	Signature     string `json:"signature"`
	Format        string `json:"format,omitempty"`
	Timestamp     int64  `json:"timestamp"`
	ContentLength int64  `json:"content_length"`
	DeleteAfter   int64  `json:"delete_after,omitempty"`
	LocalIndex    int64  `json:"_localIndex"`
}

// DocumentFromModel конвертирует документ bowl в wire-формат
func DocumentFromModel(doc *models.Document) Document {
	return Document{
		Path:          doc.Path,
		Author:        doc.Author,
		Content:       doc.Content,
		ContentHash:   doc.ContentHash,
		Signature:     doc.Signature,
		Format:        doc.Format,
		Timestamp:     doc.Timestamp,
		ContentLength: doc.ContentLength,
		DeleteAfter:   doc.DeleteAfter,
		LocalIndex:    doc.LocalIndex,
	}
}

// ToModel конвертирует wire-документ в модель bowl.
// LocalIndex не переносится: принимающий bowl назначает свой.
func (d Document) ToModel() *models.Document {
	return &models.Document{
		Path:          d.Path,
		Author:        d.Author,
		Content:       d.Content,
		ContentHash:   d.ContentHash,
		Signature:     d.Signature,
		Format:        d.Format,
		Timestamp:     d.Timestamp,
		ContentLength: d.ContentLength,
		DeleteAfter:   d.DeleteAfter,
	}
}

// HandshakeRequest - запрос saltedHandshake: соль вызывающей стороны
type HandshakeRequest struct {
	Salt string `json:"salt"` // hex-encoded случайная соль соединения
}

// HandshakeResponse - ответ saltedHandshake
type HandshakeResponse struct {
	PeerID string `json:"peer_id"` // стабильный идентификатор peer

	// SaltedShares - hex(SHA256(salt || shareAddress)) для каждого
	// локального share отвечающей стороны; по хешам нельзя перечислить shares
	SaltedShares []string `json:"salted_shares"`
}

// AllShareStatesResponse - карта share -> highestLocalIndex,
// ограниченная общими shares
type AllShareStatesResponse struct {
	States map[string]int64 `json:"states"`
}

// GetShareStateRequest - запрос highestLocalIndex одного share
type GetShareStateRequest struct {
	Share string `json:"share"`
}

// GetShareStateResponse - текущий highestLocalIndex share
type GetShareStateResponse struct {
	HighestLocalIndex int64 `json:"highest_local_index"`
}

// GetDocsRequest - запрос батча документов с LocalIndex > FromIndex
type GetDocsRequest struct {
	Share     string `json:"share"`
	FromIndex int64  `json:"from_index"`
	Limit     int    `json:"limit"` // ограничивается GetDocsMaxLimit
}

// GetDocsResponse - документы по возрастанию LocalIndex
type GetDocsResponse struct {
	Docs []Document `json:"docs"`
}

// ShareSyncStatus - состояние одной sync session
type ShareSyncStatus struct {
	Share               string `json:"share"`
	Error               string `json:"error,omitempty"` // маркер последней сетевой ошибки
	Pulled              int64  `json:"pulled"`          // документов принято за этот запуск
	PartnerHighestIndex int64  `json:"partner_highest_index"`
	LocalHighestIndex   int64  `json:"local_highest_index"`
	CaughtUp            bool   `json:"caught_up"`
}
