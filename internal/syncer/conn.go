// Package syncer реализует синхронизацию peers: duplex RPC канал,
// координатор общих shares и per-share sessions.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iudanet/docbowl/pkg/api"
)

var (
	// ErrConnClosed возвращается при операции над закрытым соединением
	ErrConnClosed = errors.New("rpc connection is closed")
)

// Transport - нижний слой duplex канала: доставка кадров между peers.
// Реализации: WebSocket и in-memory pipe для тестов.
type Transport interface {
	// WriteMessage отправляет один кадр
	WriteMessage(data []byte) error
	// ReadMessage блокируется до получения следующего кадра
	ReadMessage() ([]byte, error)
	// Close разрывает соединение; блокированные ReadMessage возвращают ошибку
	Close() error
}

// RequestHandler обслуживает входящий запрос партнера
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (any, error)

// Conn - duplex RPC соединение: оба конца одновременно выступают
// клиентом и сервером. Каждая сторона владеет своим исходящим потоком.
type Conn struct {
	transport Transport
	logger    *slog.Logger

	writeMu sync.Mutex // сериализует исходящие кадры

	mu            sync.Mutex
	pending       map[int64]chan *api.Envelope
	nextID        int64
	reqHandler    RequestHandler
	notifyHandler func(api.Notify)
	closed        bool

	done chan struct{}
}

// NewConn создает RPC соединение поверх транспорта и запускает читающий цикл
func NewConn(transport Transport, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		transport: transport,
		logger:    logger,
		pending:   make(map[int64]chan *api.Envelope),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// SetHandlers устанавливает обработчики входящих запросов и уведомлений.
// Должно быть вызвано до того, как партнер начнет слать запросы.
func (c *Conn) SetHandlers(request RequestHandler, notify func(api.Notify)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqHandler = request
	c.notifyHandler = notify
}

// Done возвращает канал, закрываемый при разрыве соединения
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) readLoop() {
	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			c.shutdown()
			return
		}

		var env api.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("Dropping malformed rpc frame", "error", err)
			continue
		}

		switch env.Kind {
		case api.EnvelopeRequest:
			// Обслуживаем запрос на отдельной goroutine,
			// чтобы не блокировать прием ответов на собственные вызовы
			go c.serve(&env)
		case api.EnvelopeResponse:
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			if ok {
				delete(c.pending, env.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- &env
			}
		case api.EnvelopeNotify:
			c.mu.Lock()
			handler := c.notifyHandler
			c.mu.Unlock()
			if handler != nil && env.Notify != nil {
				handler(*env.Notify)
			}
		default:
			c.logger.Warn("Dropping rpc frame of unknown kind", "kind", env.Kind)
		}
	}
}

func (c *Conn) serve(req *api.Envelope) {
	c.mu.Lock()
	handler := c.reqHandler
	c.mu.Unlock()

	resp := api.Envelope{Kind: api.EnvelopeResponse, ID: req.ID}

	if handler == nil {
		resp.Error = "no request handler registered"
	} else {
		result, err := handler(context.Background(), req.Method, req.Params)
		if err != nil {
			resp.Error = err.Error()
		} else if result != nil {
			data, err := json.Marshal(result)
			if err != nil {
				resp.Error = fmt.Sprintf("failed to marshal result: %v", err)
			} else {
				resp.Result = data
			}
		}
	}

	if err := c.write(&resp); err != nil && !errors.Is(err, ErrConnClosed) {
		c.logger.Warn("Failed to write rpc response", "method", req.Method, "error", err)
	}
}

func (c *Conn) write(env *api.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.transport.WriteMessage(data); err != nil {
		return fmt.Errorf("transport write failed: %w", err)
	}
	return nil
}

// Call выполняет запрос к партнеру и ждет ответа.
// result может быть nil, если ответ не нужен.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		rawParams = data
	}

	respCh := make(chan *api.Envelope, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = respCh
	c.mu.Unlock()

	env := api.Envelope{Kind: api.EnvelopeRequest, ID: id, Method: method, Params: rawParams}
	if err := c.write(&env); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return err
	}

	select {
	case resp := <-respCh:
		if resp.Error != "" {
			return fmt.Errorf("remote error on %s: %s", method, resp.Error)
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("failed to unmarshal result: %w", err)
			}
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case <-c.done:
		return ErrConnClosed
	}
}

// Notify отправляет push-уведомление, не ожидающее ответа
func (c *Conn) Notify(n api.Notify) error {
	return c.write(&api.Envelope{Kind: api.EnvelopeNotify, Notify: &n})
}

// shutdown помечает соединение закрытым и освобождает ожидающие вызовы
func (c *Conn) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]chan *api.Envelope)
	c.mu.Unlock()

	close(c.done)
	for id, ch := range pending {
		ch <- &api.Envelope{Kind: api.EnvelopeResponse, ID: id, Error: ErrConnClosed.Error()}
	}
}

// Close разрывает соединение
func (c *Conn) Close() error {
	err := c.transport.Close()
	c.shutdown()
	return err
}
