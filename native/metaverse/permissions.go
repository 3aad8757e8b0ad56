package metaverse

import (
	"fmt"

	"metaverse/core/events"
	nativecommon "metaverse/native/common"
)

// IsAllowed is the single predicate gating every guarded operation. In the
// system scope it passes for the metaverse owner, system superusers and
// holders of the named key. In a brand scope it passes for the brand owner,
// the owner's approved operators on the external ledger, brand superusers
// and holders of the brand-scoped key.
func (e *Engine) IsAllowed(scope Scope, perm Permission, account [20]byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isAllowed(scope, perm, account)
}

func (e *Engine) isAllowed(scope Scope, perm Permission, account [20]byte) bool {
	if scope.IsSystem() {
		owner, err := e.st.Owner()
		if err != nil {
			return false
		}
		if owner != ([20]byte{}) && owner == account {
			return true
		}
		if e.st.HasSuperuser([20]byte{}, account) {
			return true
		}
		return !perm.IsSuperuser() && e.st.HasPermission([20]byte{}, perm.Key(), account)
	}

	brand := scope.Brand()
	if owner, ok := e.brands.Owner(brand); ok {
		if owner == account {
			return true
		}
		if e.ledger.IsApprovedOperator(owner, account) {
			return true
		}
	}
	if e.st.HasSuperuser(brand, account) {
		return true
	}
	return !perm.IsSuperuser() && e.st.HasPermission(brand, perm.Key(), account)
}

// Grant flips a permission bit for an account. Only superusers of the scope
// may grant, and the superuser bit itself can only be granted by the literal
// scope owner; another superuser cannot extend the superuser set. Every
// change is emitted as an auditable record.
func (e *Engine) Grant(caller [20]byte, scope Scope, perm Permission, account [20]byte, allowed bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withCommit(func() error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		if !e.isAllowed(scope, Superuser, caller) {
			return fmt.Errorf("%w: superuser required", ErrUnauthorized)
		}
		if perm.IsSuperuser() {
			if err := e.requireLiteralOwner(scope, caller); err != nil {
				return err
			}
			if err := e.st.SetSuperuser(scope.Brand(), account, allowed); err != nil {
				return err
			}
		} else {
			if err := e.st.SetPermission(scope.Brand(), perm.Key(), account, allowed); err != nil {
				return err
			}
		}
		e.queue(events.PermissionChanged{
			Brand:     scope.Brand(),
			Key:       perm.Key(),
			Superuser: perm.IsSuperuser(),
			Account:   account,
			Allowed:   allowed,
			Granter:   caller,
		})
		return nil
	})
}

func (e *Engine) requireLiteralOwner(scope Scope, caller [20]byte) error {
	if scope.IsSystem() {
		owner, err := e.st.Owner()
		if err != nil {
			return err
		}
		if owner == caller {
			return nil
		}
		return fmt.Errorf("%w: only the owner may grant superuser", ErrUnauthorized)
	}
	if owner, ok := e.brands.Owner(scope.Brand()); ok && owner == caller {
		return nil
	}
	return fmt.Errorf("%w: only the brand owner may grant superuser", ErrUnauthorized)
}

// RegisterPlugin admits an extension module into the ledger. The caller needs
// the deploy permission, the module must report this metaverse as its own and
// its Initialize hook runs exactly once, before any allocator call from the
// module is accepted.
func (e *Engine) RegisterPlugin(caller [20]byte, plugin Plugin) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withCommit(func() error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		if plugin == nil {
			return fmt.Errorf("%w: nil plug-in", ErrInvalidOperation)
		}
		if !e.isAllowed(SystemScope(), Named(PermDeploy), caller) {
			return fmt.Errorf("%w: %s required", ErrUnauthorized, PermDeploy)
		}
		if plugin.Metaverse() != e.id {
			return fmt.Errorf("%w: plug-in built for metaverse %x", ErrInvalidOperation, plugin.Metaverse())
		}
		module := plugin.Address()
		if e.st.PluginRegistered(module) {
			return fmt.Errorf("%w: plug-in %x", ErrAlreadyRegistered, module)
		}
		if err := plugin.Initialize(); err != nil {
			return fmt.Errorf("plug-in %x initialize: %w", module, err)
		}
		if err := e.st.AddPlugin(module); err != nil {
			return err
		}
		e.plugins[module] = plugin
		e.queue(events.PluginRegistered{Module: module, Registrar: caller})
		return nil
	})
}

// AttachPlugin re-binds the runtime handle of an already registered module,
// e.g. after a restart. Initialize is not invoked again.
func (e *Engine) AttachPlugin(plugin Plugin) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if plugin == nil {
		return fmt.Errorf("%w: nil plug-in", ErrInvalidOperation)
	}
	module := plugin.Address()
	if !e.st.PluginRegistered(module) {
		return fmt.Errorf("%w: plug-in %x is not registered", ErrUnauthorized, module)
	}
	e.plugins[module] = plugin
	return nil
}
