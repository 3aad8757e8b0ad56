package metaverse_test

import (
	"errors"
	"testing"

	"metaverse/core/events"
	metaverse "metaverse/native/metaverse"
)

func TestOwnerIsAlwaysSystemSuperuser(t *testing.T) {
	env := newTestEnv(t)
	if !env.engine.IsAllowed(metaverse.SystemScope(), metaverse.Superuser, env.owner) {
		t.Fatalf("owner must satisfy the superuser check")
	}
	if !env.engine.IsAllowed(metaverse.SystemScope(), metaverse.Named("anything"), env.owner) {
		t.Fatalf("owner must satisfy every named check")
	}
}

func TestPermissionsDefaultToDenied(t *testing.T) {
	env := newTestEnv(t)
	nobody := addr(0x77)
	if env.engine.IsAllowed(metaverse.SystemScope(), metaverse.Named("anything"), nobody) {
		t.Fatalf("ungranted account must be denied")
	}
	if env.engine.IsAllowed(metaverse.BrandScope(addr(0xBB)), metaverse.Named("anything"), nobody) {
		t.Fatalf("ungranted account must be denied in brand scope")
	}
}

func TestGrantNamedPermission(t *testing.T) {
	env := newTestEnv(t)
	account := addr(0x20)

	if err := env.engine.Grant(env.owner, metaverse.SystemScope(), metaverse.Named(metaverse.PermDeploy), account, true); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !env.engine.IsAllowed(metaverse.SystemScope(), metaverse.Named(metaverse.PermDeploy), account) {
		t.Fatalf("expected permission after grant")
	}
	if env.engine.IsAllowed(metaverse.SystemScope(), metaverse.Named("other"), account) {
		t.Fatalf("grant must not cover other keys")
	}

	ev, ok := env.emitter.last(t).(events.PermissionChanged)
	if !ok {
		t.Fatalf("unexpected event %T", env.emitter.last(t))
	}
	if ev.Account != account || !ev.Allowed || ev.Key != metaverse.PermDeploy {
		t.Fatalf("unexpected permission event %+v", ev)
	}

	if err := env.engine.Grant(env.owner, metaverse.SystemScope(), metaverse.Named(metaverse.PermDeploy), account, false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if env.engine.IsAllowed(metaverse.SystemScope(), metaverse.Named(metaverse.PermDeploy), account) {
		t.Fatalf("expected permission revoked")
	}
}

func TestGrantRequiresSuperuser(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.Grant(addr(0x30), metaverse.SystemScope(), metaverse.Named("x"), addr(0x31), true); !errors.Is(err, metaverse.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSystemSuperuserGrantRestrictedToOwner(t *testing.T) {
	env := newTestEnv(t)
	deputy := addr(0x40)
	target := addr(0x41)

	if err := env.engine.Grant(env.owner, metaverse.SystemScope(), metaverse.Superuser, deputy, true); err != nil {
		t.Fatalf("owner grants superuser: %v", err)
	}
	if !env.engine.IsAllowed(metaverse.SystemScope(), metaverse.Named("anything"), deputy) {
		t.Fatalf("superuser must satisfy named checks")
	}

	// The deputy can grant named permissions but not extend the superuser
	// set; that would allow privilege self-escalation chains.
	if err := env.engine.Grant(deputy, metaverse.SystemScope(), metaverse.Named("x"), target, true); err != nil {
		t.Fatalf("deputy grants named: %v", err)
	}
	if err := env.engine.Grant(deputy, metaverse.SystemScope(), metaverse.Superuser, target, true); !errors.Is(err, metaverse.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for deputy superuser grant, got %v", err)
	}
	if env.engine.IsAllowed(metaverse.SystemScope(), metaverse.Superuser, target) {
		t.Fatalf("failed grant must not change state")
	}
}

func TestBrandScopePermissions(t *testing.T) {
	env := newTestEnv(t)
	brand := addr(0xB0)
	brandOwner := addr(0xB1)
	operator := addr(0xB2)
	helper := addr(0xB3)

	if err := env.brands.OnOwnerChanged(brand, brandOwner); err != nil {
		t.Fatalf("seed brand: %v", err)
	}

	scope := metaverse.BrandScope(brand)
	if !env.engine.IsAllowed(scope, metaverse.Named("edit"), brandOwner) {
		t.Fatalf("brand owner must pass every brand check")
	}

	env.ledger.SetApproval(brandOwner, operator, true)
	if !env.engine.IsAllowed(scope, metaverse.Named("edit"), operator) {
		t.Fatalf("approved operator must pass brand checks")
	}

	if err := env.engine.Grant(brandOwner, scope, metaverse.Named("edit"), helper, true); err != nil {
		t.Fatalf("brand grant: %v", err)
	}
	if !env.engine.IsAllowed(scope, metaverse.Named("edit"), helper) {
		t.Fatalf("expected brand permission after grant")
	}
	if env.engine.IsAllowed(metaverse.SystemScope(), metaverse.Named("edit"), helper) {
		t.Fatalf("brand grant must not leak into system scope")
	}

	// Operators may grant named bits but the brand superuser bit stays
	// with the literal brand owner.
	if err := env.engine.Grant(operator, scope, metaverse.Superuser, helper, true); !errors.Is(err, metaverse.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for operator superuser grant, got %v", err)
	}
	if err := env.engine.Grant(brandOwner, scope, metaverse.Superuser, helper, true); err != nil {
		t.Fatalf("brand owner superuser grant: %v", err)
	}
}

func TestRegisterPluginFlow(t *testing.T) {
	env := newTestEnv(t)
	plugin := newTestPlugin(addr(0x50), env.engine.ID())

	if err := env.engine.RegisterPlugin(env.owner, plugin); err != nil {
		t.Fatalf("register: %v", err)
	}
	if plugin.initialized != 1 {
		t.Fatalf("initialize ran %d times, want exactly once", plugin.initialized)
	}

	if err := env.engine.RegisterPlugin(env.owner, plugin); !errors.Is(err, metaverse.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if plugin.initialized != 1 {
		t.Fatalf("initialize must not run again on duplicate registration")
	}
}

func TestRegisterPluginRequiresDeployPermission(t *testing.T) {
	env := newTestEnv(t)
	plugin := newTestPlugin(addr(0x50), env.engine.ID())
	if err := env.engine.RegisterPlugin(addr(0x51), plugin); !errors.Is(err, metaverse.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if plugin.initialized != 0 {
		t.Fatalf("initialize must not run for a rejected registration")
	}

	deployer := addr(0x52)
	if err := env.engine.Grant(env.owner, metaverse.SystemScope(), metaverse.Named(metaverse.PermDeploy), deployer, true); err != nil {
		t.Fatalf("grant deploy: %v", err)
	}
	if err := env.engine.RegisterPlugin(deployer, plugin); err != nil {
		t.Fatalf("register with deploy permission: %v", err)
	}
}

func TestRegisterPluginRejectsForeignMetaverse(t *testing.T) {
	env := newTestEnv(t)
	plugin := newTestPlugin(addr(0x50), addr(0xEE))
	if err := env.engine.RegisterPlugin(env.owner, plugin); !errors.Is(err, metaverse.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
}

func TestRegisterPluginRollsBackOnInitializeFailure(t *testing.T) {
	env := newTestEnv(t)
	plugin := newTestPlugin(addr(0x50), env.engine.ID())
	plugin.initErr = errors.New("boom")

	if err := env.engine.RegisterPlugin(env.owner, plugin); err == nil {
		t.Fatalf("expected initialize failure to surface")
	}
	if _, err := env.engine.AllocateNFTType(plugin.Address()); !errors.Is(err, metaverse.ErrUnauthorized) {
		t.Fatalf("failed registration must not admit the plug-in, got %v", err)
	}
}

func TestAttachPluginRebindsWithoutInitialize(t *testing.T) {
	env := newTestEnv(t)
	plugin := env.registerPlugin(t, 0x50)

	rebound := newTestPlugin(plugin.Address(), env.engine.ID())
	if err := env.engine.AttachPlugin(rebound); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if rebound.initialized != 0 {
		t.Fatalf("attach must not initialize")
	}

	stranger := newTestPlugin(addr(0x60), env.engine.ID())
	if err := env.engine.AttachPlugin(stranger); !errors.Is(err, metaverse.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unregistered module, got %v", err)
	}
}
