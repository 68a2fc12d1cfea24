package syncer

import (
	"io"
	"sync"
)

// pipeTransport - in-memory транспорт: пара связанных концов.
// Закрытие любого конца разрывает соединение целиком, как у сетевого канала.
type pipeTransport struct {
	out  chan []byte
	in   chan []byte
	done chan struct{}
	once *sync.Once
}

// NewPipe создает пару связанных транспортов для тестов и
// синхронизации внутри одного процесса
func NewPipe() (Transport, Transport) {
	aToB := make(chan []byte, 64)
	bToA := make(chan []byte, 64)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &pipeTransport{out: aToB, in: bToA, done: done, once: once}
	b := &pipeTransport{out: bToA, in: aToB, done: done, once: once}
	return a, b
}

func (p *pipeTransport) WriteMessage(data []byte) error {
	// Копируем кадр: вызывающая сторона может переиспользовать буфер
	frame := make([]byte, len(data))
	copy(frame, data)

	select {
	case p.out <- frame:
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	}
}

func (p *pipeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	case <-p.done:
		// Дочитываем кадры, отправленные до закрытия
		select {
		case data := <-p.in:
			return data, nil
		default:
			return nil, io.EOF
		}
	}
}

func (p *pipeTransport) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
