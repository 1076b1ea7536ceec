package permission

import "errors"

// ErrForbidden is returned by Check when a requirement is not met.
var ErrForbidden = errors.New("permission: forbidden")

type kind uint8

const (
	anyRole kind = iota + 1
	allPermissions
	anyPermission
)

// Requirement is one authorization condition. Build values with
// RequireRoles, RequireAllPermissions or RequireAnyPermission.
type Requirement struct {
	kind   kind
	values []string
}

// RequireRoles is met when the subject holds at least one of roles.
func RequireRoles(roles ...string) Requirement {
	return Requirement{kind: anyRole, values: roles}
}

// RequireAllPermissions is met when the subject's roles grant every permission.
func RequireAllPermissions(perms ...string) Requirement {
	return Requirement{kind: allPermissions, values: perms}
}

// RequireAnyPermission is met when the subject's roles grant at least one permission.
func RequireAnyPermission(perms ...string) Requirement {
	return Requirement{kind: anyPermission, values: perms}
}

// Check evaluates every requirement against roles and returns ErrForbidden
// on the first one that fails. A requirement naming an unregistered
// permission returns ErrUnknownPermission. No requirements means allowed.
func (rm *RoleManager) Check(roles []string, reqs ...Requirement) error {
	for _, req := range reqs {
		ok, err := rm.satisfies(roles, req)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden
		}
	}
	return nil
}

func (rm *RoleManager) satisfies(roles []string, req Requirement) (bool, error) {
	switch req.kind {
	case anyRole:
		for _, want := range req.values {
			for _, have := range roles {
				if want == have {
					return true, nil
				}
			}
		}
		return false, nil
	case allPermissions, anyPermission:
		if len(req.values) == 0 {
			return req.kind == allPermissions, nil
		}
		for _, perm := range req.values {
			bit, ok := rm.registry.Bit(perm)
			if !ok {
				return false, errors.Join(ErrUnknownPermission, errors.New(perm))
			}
			granted := rm.grants(roles, bit)
			if req.kind == anyPermission && granted {
				return true, nil
			}
			if req.kind == allPermissions && !granted {
				return false, nil
			}
		}
		return req.kind == allPermissions, nil
	default:
		return false, errors.New("permission: zero Requirement")
	}
}
