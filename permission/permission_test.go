package permission

import (
	"errors"
	"testing"
)

func newTestRoles(t *testing.T) *RoleManager {
	t.Helper()
	reg := NewRegistry()
	for _, p := range []string{"users:read", "users:write", "billing:read"} {
		if _, err := reg.Register(p); err != nil {
			t.Fatalf("Register %s: %v", p, err)
		}
	}
	reg.Freeze()

	rm := NewRoleManager(reg)
	if err := rm.RegisterRole("viewer", "users:read"); err != nil {
		t.Fatalf("RegisterRole viewer: %v", err)
	}
	if err := rm.RegisterRole("editor", "users:read", "users:write"); err != nil {
		t.Fatalf("RegisterRole editor: %v", err)
	}
	if err := rm.RegisterSuperRole("admin"); err != nil {
		t.Fatalf("RegisterSuperRole: %v", err)
	}
	rm.Freeze()
	return rm
}

func TestRegistryRules(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Register(""); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	bit, err := reg.Register("a")
	if err != nil || bit != 0 {
		t.Fatalf("expected bit 0, got %d (%v)", bit, err)
	}
	if _, err := reg.Register("a"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if name, ok := reg.Name(0); !ok || name != "a" {
		t.Fatalf("expected name a, got %q", name)
	}
	reg.Freeze()
	if _, err := reg.Register("b"); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
}

func TestRegistryLimit(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < MaxPermissions; i++ {
		if _, err := reg.Register(string(rune('A'+i%26)) + string(rune(i))); err != nil {
			t.Fatalf("Register %d: %v", i, err)
		}
	}
	if _, err := reg.Register("overflow"); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
}

func TestCheckRequirements(t *testing.T) {
	rm := newTestRoles(t)

	if err := rm.Check([]string{"viewer"}, RequireRoles("editor", "viewer")); err != nil {
		t.Fatalf("expected role match, got %v", err)
	}
	if err := rm.Check([]string{"viewer"}, RequireRoles("editor")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := rm.Check([]string{"viewer"}, RequireAllPermissions("users:read", "users:write")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected viewer to lack users:write, got %v", err)
	}
	if err := rm.Check([]string{"viewer", "editor"}, RequireAllPermissions("users:read", "users:write")); err != nil {
		t.Fatalf("expected union of roles to satisfy, got %v", err)
	}
	if err := rm.Check([]string{"viewer"}, RequireAnyPermission("billing:read", "users:read")); err != nil {
		t.Fatalf("expected any-permission match, got %v", err)
	}
	if err := rm.Check([]string{"editor"}, RequireAnyPermission("billing:read")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := rm.Check([]string{"admin"}, RequireAllPermissions("users:write", "billing:read")); err != nil {
		t.Fatalf("expected super role to pass, got %v", err)
	}
	if err := rm.Check([]string{"ghost"}, RequireAnyPermission("users:read")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected unknown role to grant nothing, got %v", err)
	}
	if err := rm.Check([]string{"admin"}, RequireAnyPermission("nope")); !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
	if err := rm.Check(nil); err != nil {
		t.Fatalf("expected no requirements to pass, got %v", err)
	}
}

func TestRegisterRoleUnknownPermission(t *testing.T) {
	rm := NewRoleManager(NewRegistry())
	if err := rm.RegisterRole("x", "missing"); !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
	rm.Freeze()
	if err := rm.RegisterSuperRole("root"); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
}
