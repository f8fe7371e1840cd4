package waitqueue

// Test hooks for inspecting the waiter registry from waitqueue_test.

func (h *ListenHandler) Has(id string) bool { return h.has(id) }

func (h *ListenHandler) Len() int { return h.size() }

var WithID = withID
