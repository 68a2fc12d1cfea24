package api

import "encoding/json"

// Виды envelope в duplex RPC канале
const (
	EnvelopeRequest  = "request"
	EnvelopeResponse = "response"
	EnvelopeNotify   = "notify"
)

// Envelope - кадр duplex RPC канала. Оба конца соединения шлют
// запросы, ответы и уведомления по одному и тому же WebSocket.
type Envelope struct {
	Kind   string          `json:"kind"`
	Method string          `json:"method,omitempty"`
	Error  string          `json:"error,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Notify *Notify         `json:"notify,omitempty"`
	ID     int64           `json:"id,omitempty"`
}

// Виды уведомлений
const (
	// NotifyShareState - у отправителя появились новые документы share
	NotifyShareState = "share_state"
	// NotifySyncStatus - отправитель публикует состояние своей sync session
	NotifySyncStatus = "sync_status"
)

// Notify - push-уведомление, не требующее ответа.
// Уведомления шлются только про общие shares.
type Notify struct {
	Kind              string           `json:"kind"`
	Share             string           `json:"share,omitempty"`
	Status            *ShareSyncStatus `json:"status,omitempty"`
	HighestLocalIndex int64            `json:"highest_local_index,omitempty"`
}
