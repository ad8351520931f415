package supervisor

import "errors"

var (
	ErrNoAdapter    = errors.New("NoAdapter")
	ErrTmuxFailure  = errors.New("TmuxFailure")
	ErrInvalidPath  = errors.New("InvalidPath")
	ErrNotFound     = errors.New("NotFound")
	ErrNoTerminal   = errors.New("NoTerminal")
	ErrOffline      = errors.New("Offline")
	ErrStopped      = errors.New("supervisor stopped")
	ErrInvalidInput = errors.New("InvalidInput")
)
