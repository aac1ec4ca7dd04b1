package services

// Executor runs callbacks that arrive on adapter or timer goroutines:
// peer updates, topic changes and debounced saves. The runtime hands every
// service the same serial loop so those callbacks never overlap with each
// other or with user commands.
type Executor interface {
	Submit(fn func())
}

// Inline runs submitted work at once on the calling goroutine
type Inline struct{}

// Submit calls fn
func (Inline) Submit(fn func()) {
	fn()
}

func executorOrInline(e Executor) Executor {
	if e == nil {
		return Inline{}
	}
	return e
}
