package syncer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// wsTransport - транспорт поверх одного WebSocket соединения.
// Конкурентную запись сериализует Conn.
type wsTransport struct {
	ws *websocket.Conn
}

// NewWebsocketTransport оборачивает установленное WebSocket соединение
func NewWebsocketTransport(ws *websocket.Conn) Transport {
	return &wsTransport{ws: ws}
}

func (t *wsTransport) WriteMessage(data []byte) error {
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := t.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			return data, nil
		default:
			// ping/pong обрабатывает сама библиотека
			continue
		}
	}
}

func (t *wsTransport) Close() error {
	return t.ws.Close()
}

// Dial устанавливает WebSocket соединение с sync endpoint партнера.
// url - адрес вида "ws://host:port/api/v1/sync".
// token - опциональный bearer token для endpoint с включенной аутентификацией.
func Dial(ctx context.Context, url, token string) (Transport, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (status %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	return NewWebsocketTransport(ws), nil
}
