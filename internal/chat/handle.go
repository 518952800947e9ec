package chat

import "sync"

// StreamHandle is the controller's grip on one open stream.
//
// Cancel is total: it may be called any number of times, before the
// transport has been bound, after the stream finished, or on a nil handle.
type StreamHandle struct {
	mu        sync.Mutex
	cancel    CancelFunc
	cancelled bool

	messageID string
	// fallback is the non-streamed answer of the send response
	fallback string
}

func newStreamHandle(messageID, fallback string) *StreamHandle {
	return &StreamHandle{messageID: messageID, fallback: fallback}
}

// MessageID returns the id of the assistant message fed by this stream
func (h *StreamHandle) MessageID() string {
	if h == nil {
		return ""
	}
	return h.messageID
}

// Cancel closes the underlying transport once
func (h *StreamHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return
	}
	h.cancelled = true
	fn := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Cancelled reports whether Cancel has been called
func (h *StreamHandle) Cancelled() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// bind attaches the transport's cancel function. A handle cancelled before
// the transport was open closes the transport right away.
func (h *StreamHandle) bind(fn CancelFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		fn()
		return
	}
	h.cancel = fn
	h.mu.Unlock()
}
