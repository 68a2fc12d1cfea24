package middleware

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
)

// panicWriter отслеживает, был ли ответ начат или соединение отобрано
// у HTTP через hijack (WebSocket upgrade сделал это для sync endpoint).
// От этого зависит, можно ли еще ответить 500 после паники.
type panicWriter struct {
	http.ResponseWriter
	hijacked    bool
	wroteHeader bool
}

func (pw *panicWriter) WriteHeader(code int) {
	pw.wroteHeader = true
	pw.ResponseWriter.WriteHeader(code)
}

func (pw *panicWriter) Write(b []byte) (int, error) {
	pw.wroteHeader = true
	return pw.ResponseWriter.Write(b)
}

func (pw *panicWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := pw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	conn, rw, err := hijacker.Hijack()
	if err == nil {
		pw.hijacked = true
	}
	return conn, rw, err
}

// Unwrap возвращает исходный ResponseWriter (для http.ResponseController)
func (pw *panicWriter) Unwrap() http.ResponseWriter {
	return pw.ResponseWriter
}

// Recovery перехватывает паники обработчиков sync сервера.
// http.ErrAbortHandler пробрасывается дальше (стандартный способ оборвать
// ответ). После hijack отвечать некому: паника только логируется, рваное
// WebSocket соединение партнер увидит как NetworkError своей session.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pw := &panicWriter{ResponseWriter: w}

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("Panic while serving request",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"hijacked", pw.hijacked,
					"stack", string(debug.Stack()),
				)

				if pw.hijacked {
					return
				}
				if !pw.wroteHeader {
					// Без деталей: паника могла нести внутреннее состояние
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(pw, r)
		})
	}
}
