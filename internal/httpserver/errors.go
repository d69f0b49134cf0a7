package httpserver

const (
	ErrMissingID  = "missing id"
	ErrDependency = "dependency error"
	ErrNotFound   = "campaign not found"
	ErrConflict   = "campaign cannot be dispatched"
	ErrBusy       = "campaign dispatch already in progress"
	ErrEnqueue    = "enqueue failed"
)
