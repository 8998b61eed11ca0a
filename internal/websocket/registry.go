package websocket

import (
	"sync"

	"go-direct-chat/internal/interfaces"
)

// Registry maps a user ID to its single live connection. At most one
// connection per user: storing a new one evicts the previous handle, and the
// eviction is an explicit transition, never an incidental map overwrite.
type Registry struct {
	mu      sync.RWMutex
	clients map[uint]interfaces.Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[uint]interfaces.Client)}
}

// Put stores client as the live connection for its user and returns the
// evicted previous connection, if any. The caller is responsible for closing
// the evicted handle.
func (r *Registry) Put(client interfaces.Client) (evicted interfaces.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := client.GetUserID()
	if prev, ok := r.clients[userID]; ok && prev != client {
		evicted = prev
	}
	r.clients[userID] = client
	return evicted
}

// Remove deletes the mapping for client only while it is still the registered
// handle, so an evicted connection unregistering late cannot remove its
// successor. Idempotent.
func (r *Registry) Remove(client interfaces.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := client.GetUserID()
	if current, ok := r.clients[userID]; ok && current == client {
		delete(r.clients, userID)
		return true
	}
	return false
}

func (r *Registry) Get(userID uint) (interfaces.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[userID]
	return client, ok
}

func (r *Registry) Contains(userID uint) bool {
	_, ok := r.Get(userID)
	return ok
}

// Users returns the IDs of all currently connected users.
func (r *Registry) Users() []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]uint, 0, len(r.clients))
	for userID := range r.clients {
		users = append(users, userID)
	}
	return users
}

// Snapshot returns all live connections.
func (r *Registry) Snapshot() []interfaces.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]interfaces.Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Clear drops all mappings and closes the connections. Used at shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, client := range r.clients {
		client.Close()
		delete(r.clients, userID)
	}
}
