package permission

import (
	"errors"
	"sync"
)

// RoleManager composes roles from registered permissions.
//
// A role registered as a super role is granted every permission, including
// ones registered after the role.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask
	super  map[string]bool
	frozen bool
}

func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask),
		super:    make(map[string]bool),
	}
}

// RegisterRole defines roleName with the given permissions. Every name must
// already be registered.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames ...string) error {
	var mask Mask
	for _, perm := range permissionNames {
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return errors.Join(ErrUnknownPermission, errors.New(perm))
		}
		mask.Set(bit)
	}
	return rm.add(roleName, mask, false)
}

// RegisterSuperRole defines a role holding every permission.
func (rm *RoleManager) RegisterSuperRole(roleName string) error {
	return rm.add(roleName, Mask{}, true)
}

func (rm *RoleManager) add(roleName string, mask Mask, super bool) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return ErrFrozen
	}
	if roleName == "" {
		return ErrEmptyName
	}
	if _, exists := rm.roles[roleName]; exists {
		return ErrAlreadyRegistered
	}
	rm.roles[roleName] = mask
	if super {
		rm.super[roleName] = true
	}
	return nil
}

// Mask returns the permission mask of roleName.
func (rm *RoleManager) Mask(roleName string) (Mask, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	mask, ok := rm.roles[roleName]
	return mask, ok
}

// grants reports whether any of roles holds the permission bit. Unknown
// roles grant nothing.
func (rm *RoleManager) grants(roles []string, bit int) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for _, role := range roles {
		if rm.super[role] {
			return true
		}
		if mask, ok := rm.roles[role]; ok && mask.Has(bit) {
			return true
		}
	}
	return false
}

// Freeze prevents further role registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
