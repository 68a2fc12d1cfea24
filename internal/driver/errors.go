package driver

import "errors"

var (
	// ErrDriverClosed возвращается при операции над закрытым драйвером
	ErrDriverClosed = errors.New("driver is closed")

	// ErrDocNotFound возвращается, когда документ (path, author) не найден
	ErrDocNotFound = errors.New("document not found")
)
