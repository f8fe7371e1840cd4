package waitqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgxlisten"
)

// ListenHandler fans a release notification out to every registered waiter.
// A release may free any number of items, so each waiter gets a chance to
// claim again instead of one waiter being picked.
type ListenHandler struct {
	mu sync.RWMutex

	waiters map[string]func(context.Context) error
}

var _ pgxlisten.Handler = (*ListenHandler)(nil)

// HandleNotification implements the pgxlisten.Handler interface.
func (h *ListenHandler) HandleNotification(ctx context.Context, _ *pgconn.Notification, _ *pgx.Conn) error {
	h.mu.RLock()
	callbacks := make([]func(context.Context) error, 0, len(h.waiters))
	for _, callback := range h.waiters {
		if callback != nil {
			callbacks = append(callbacks, callback)
		}
	}
	h.mu.RUnlock()

	// Callbacks run asynchronously so a slow waiter never blocks the listener.
	for _, callback := range callbacks {
		go func() {
			_ = callback(ctx)
		}()
	}
	return nil
}

// Register registers a waiter under id.
func (h *ListenHandler) Register(id string, callback func(context.Context) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.waiters == nil {
		h.waiters = make(map[string]func(context.Context) error)
	}
	if _, exists := h.waiters[id]; exists {
		return fmt.Errorf("duplicate id: %s", id)
	}
	h.waiters[id] = callback
	return nil
}

// has reports whether a waiter is registered under id.
func (h *ListenHandler) has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.waiters[id]
	return exists
}

// size returns the number of registered waiters.
func (h *ListenHandler) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.waiters)
}

// Unregister removes the waiter registered under id.
func (h *ListenHandler) Unregister(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.waiters[id]; !exists {
		return false
	}
	delete(h.waiters, id)
	return true
}
