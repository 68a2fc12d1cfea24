package models

// Document представляет подписанный документ в share.
// После успешного upsert документ неизменяем: все поля, кроме LocalIndex,
// покрыты подписью автора и не могут быть изменены без её инвалидирования.
type Document struct {
	Path          string `json:"path"`                  // Path путь документа внутри share (printable ASCII, начинается с "/")
	Author        string `json:"author"`                // Author адрес автора вида "@name.pubkey"
	Content       string `json:"content"`               // Content полезная нагрузка документа
	ContentHash   string `json:"content_hash"`          // ContentHash base32(SHA256(Content))
	Signature     string `json:"signature"`             // Signature base32 подпись ed25519 над signing base
	Format        string `json:"format,omitempty"`      // Format версия формата документа (по умолчанию "db.1")
	Timestamp     int64  `json:"timestamp"`             // Timestamp микросекунды с эпохи; всегда > 0
	ContentLength int64  `json:"content_length"`        // ContentLength длина Content в байтах
	DeleteAfter   int64  `json:"delete_after,omitempty"` // DeleteAfter микросекунды; 0 = документ не истекает
	LocalIndex    int64  `json:"-"`                     // LocalIndex назначается bowl при upsert; не подписывается
}

// FormatDefault - единственный поддерживаемый формат документа
const FormatDefault = "db.1"

// EffectiveFormat возвращает формат документа с учетом значения по умолчанию
func (d *Document) EffectiveFormat() string {
	if d.Format == "" {
		return FormatDefault
	}
	return d.Format
}

// IsNewerThan сравнивает два документа одного (path, author) по overwrite order.
// Побеждает больший Timestamp; при равных Timestamp - лексикографически
// большая Signature. Возвращает true, если текущий документ новее other.
func (d *Document) IsNewerThan(other *Document) bool {
	if d.Timestamp != other.Timestamp {
		return d.Timestamp > other.Timestamp
	}
	return d.Signature > other.Signature
}

// SameVersionAs возвращает true, если документы имеют одинаковый
// overwrite key (равные Timestamp и Signature - то есть это один и тот же документ)
func (d *Document) SameVersionAs(other *Document) bool {
	return d.Timestamp == other.Timestamp && d.Signature == other.Signature
}

// Expired возвращает true, если документ истек к моменту nowMicros.
// Документы без DeleteAfter не истекают никогда.
func (d *Document) Expired(nowMicros int64) bool {
	return d.DeleteAfter > 0 && d.DeleteAfter <= nowMicros
}

// Clone создает глубокую копию документа
func (d *Document) Clone() *Document {
	clone := *d
	return &clone
}

// ComparePathOrder задает path order для per-path последовательностей:
// path ASC, затем timestamp DESC, затем signature DESC.
// Возвращает отрицательное число, если a должен идти раньше b.
func ComparePathOrder(a, b *Document) int {
	if a.Path != b.Path {
		if a.Path < b.Path {
			return -1
		}
		return 1
	}
	if a.Timestamp != b.Timestamp {
		if a.Timestamp > b.Timestamp {
			return -1
		}
		return 1
	}
	switch {
	case a.Signature > b.Signature:
		return -1
	case a.Signature < b.Signature:
		return 1
	default:
		return 0
	}
}
