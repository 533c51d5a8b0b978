// Package users holds the authorized-user directory.
package users

import (
	"sort"
	"strings"
	"sync"

	"homebot/internal/capability"
)

// Directory is a hot-swappable, in-memory set of authorized users.
type Directory struct {
	mu    sync.RWMutex
	users map[string]capability.User
}

var _ capability.Directory = (*Directory)(nil)

// New builds a directory from id -> display name.
func New(display map[string]string) *Directory {
	d := &Directory{}
	d.Replace(display)
	return d
}

// Replace swaps the whole directory (config reload).
func (d *Directory) Replace(display map[string]string) {
	next := make(map[string]capability.User, len(display))
	for id, name := range display {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = id
		}
		next[id] = capability.User{ID: id, Display: name}
	}
	d.mu.Lock()
	d.users = next
	d.mu.Unlock()
}

func (d *Directory) Lookup(userID string) (capability.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[strings.TrimSpace(userID)]
	return u, ok
}

// List returns all users sorted by id.
func (d *Directory) List() []capability.User {
	d.mu.RLock()
	out := make([]capability.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
