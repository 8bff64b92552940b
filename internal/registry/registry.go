// Package registry holds the configured backend driver instances grouped
// by storage role, tracks per-driver health, and selects readers.
package registry

import (
	"github.com/cognidex/cognidex/internal/store"
)

// Instance pairs one driver with its health state.
type Instance struct {
	driver store.Driver
	health *health
}

// Driver returns the underlying backend driver.
func (i *Instance) Driver() store.Driver { return i.driver }

// Name returns the configured instance name.
func (i *Instance) Name() string { return i.driver.Name() }

// Healthy reports whether the instance's circuit is closed.
func (i *Instance) Healthy() bool { return i.health.healthy() }

// Report feeds one call result into the health counter. Only
// Unavailable failures count toward tripping; any success resets.
func (i *Instance) Report(err error) {
	if err == nil {
		i.health.reportSuccess()
		return
	}
	if store.IsUnavailable(err) {
		i.health.reportUnavailable()
	}
}

// Status is an operator-facing snapshot of one instance.
type Status struct {
	Name                string       `json:"name"`
	Kind                string       `json:"kind"`
	Roles               []store.Role `json:"roles"`
	Healthy             bool         `json:"healthy"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
}

// Registry is read-mostly process state: constructed once at startup,
// passed by handle into every component that routes to backends.
type Registry struct {
	byRole map[store.Role][]*Instance
	all    []*Instance
}

// New groups the given drivers by their declared roles, preserving the
// declared order within each role. Order matters: the first healthy
// instance of a role is its primary reader.
func New(drivers []store.Driver) *Registry {
	r := &Registry{byRole: make(map[store.Role][]*Instance)}
	for _, d := range drivers {
		inst := &Instance{driver: d, health: newHealth()}
		r.all = append(r.all, inst)
		for _, role := range d.Roles() {
			r.byRole[role] = append(r.byRole[role], inst)
		}
	}
	return r
}

// InstancesFor returns every instance registered for a role, in declared
// order. The slice may be empty when the role is disabled.
func (r *Registry) InstancesFor(role store.Role) []*Instance {
	return r.byRole[role]
}

// DriversFor returns the drivers registered for a role, in declared order.
func (r *Registry) DriversFor(role store.Role) []store.Driver {
	insts := r.byRole[role]
	drivers := make([]store.Driver, len(insts))
	for i, inst := range insts {
		drivers[i] = inst.driver
	}
	return drivers
}

// PrimaryReader returns the first healthy instance of a role, or nil
// when the role has no healthy instance.
func (r *Registry) PrimaryReader(role store.Role) *Instance {
	for _, inst := range r.byRole[role] {
		if inst.Healthy() {
			return inst
		}
	}
	return nil
}

// ReadOrder returns the role's healthy instances in declared order.
// Callers walk it for ordered read fallback; tripped instances are
// excluded until their circuit closes again.
func (r *Registry) ReadOrder(role store.Role) []*Instance {
	insts := r.byRole[role]
	ordered := make([]*Instance, 0, len(insts))
	for _, inst := range insts {
		if inst.Healthy() {
			ordered = append(ordered, inst)
		}
	}
	return ordered
}

// HasRole reports whether at least one instance is registered for a role.
func (r *Registry) HasRole(role store.Role) bool {
	return len(r.byRole[role]) > 0
}

// Snapshot returns the operator-facing status of every instance.
func (r *Registry) Snapshot() []Status {
	statuses := make([]Status, 0, len(r.all))
	for _, inst := range r.all {
		statuses = append(statuses, Status{
			Name:                inst.driver.Name(),
			Kind:                inst.driver.Kind(),
			Roles:               inst.driver.Roles(),
			Healthy:             inst.Healthy(),
			ConsecutiveFailures: inst.health.failures(),
		})
	}
	return statuses
}

// Close closes every driver, returning the first error encountered.
func (r *Registry) Close() error {
	var firstErr error
	for _, inst := range r.all {
		if err := inst.driver.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
