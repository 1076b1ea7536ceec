package permission

import (
	"errors"
	"sync"
)

var (
	ErrFrozen            = errors.New("permission: registry frozen")
	ErrEmptyName         = errors.New("permission: name cannot be empty")
	ErrAlreadyRegistered = errors.New("permission: already registered")
	ErrLimitExceeded     = errors.New("permission: limit exceeded")
	ErrUnknownPermission = errors.New("permission: not registered")
	ErrUnknownRole       = errors.New("permission: role not registered")
)

// Registry maps permission names to bit positions.
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName []string
	frozen    bool
}

func NewRegistry() *Registry {
	return &Registry{nameToBit: make(map[string]int)}
}

// Register assigns the next free bit to name and returns it.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrFrozen
	}
	if name == "" {
		return -1, ErrEmptyName
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, ErrAlreadyRegistered
	}
	next := len(r.bitToName)
	if next >= MaxPermissions {
		return -1, ErrLimitExceeded
	}
	r.nameToBit[name] = next
	r.bitToName = append(r.bitToName, name)
	return next, nil
}

func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if bit < 0 || bit >= len(r.bitToName) {
		return "", false
	}
	return r.bitToName[bit], true
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bitToName)
}
