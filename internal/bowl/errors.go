package bowl

import "errors"

var (
	// ErrBowlClosed возвращается при операции над закрытым bowl
	ErrBowlClosed = errors.New("bowl is closed")
)
