package chat

import (
	"context"
	"slices"
	"sync"
)

// StaticDirectory is an in-memory Directory used by the console and tests.
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[string]User
	roles map[string][]string
}

func NewStaticDirectory(users ...User) *StaticDirectory {
	d := &StaticDirectory{
		users: make(map[string]User),
		roles: make(map[string][]string),
	}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *StaticDirectory) Put(u User, roles ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
	if len(roles) > 0 {
		d.roles[u.ID] = slices.Clone(roles)
	}
}

func (d *StaticDirectory) User(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, ErrUnknownUser
	}
	return u, nil
}

// Roles ignores serverID; a static directory models a single server.
func (d *StaticDirectory) Roles(_ context.Context, _ string, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.roles[userID]), nil
}
