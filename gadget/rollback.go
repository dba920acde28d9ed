package gadget

import (
	"errors"
	"fmt"

	"github.com/ardnew/softgadget/pkg"
)

type action struct {
	name    string
	release func() error
}

// Rollback is a stack of release actions. Each acquisition pushes the
// action that undoes it; Unwind runs them newest first.
type Rollback struct {
	actions []action
}

// Push records release under name.
func (rb *Rollback) Push(name string, release func() error) {
	rb.actions = append(rb.actions, action{name: name, release: release})
}

// Len returns the number of pending actions.
func (rb *Rollback) Len() int {
	return len(rb.actions)
}

// Unwind pops and runs every action exactly once, newest first. Failures
// do not stop the unwind; they are joined into the returned error.
func (rb *Rollback) Unwind() error {
	var errs []error
	for len(rb.actions) > 0 {
		last := len(rb.actions) - 1
		a := rb.actions[last]
		rb.actions = rb.actions[:last]

		if err := a.release(); err != nil {
			pkg.LogWarn(pkg.ComponentAssembler, "release failed",
				"action", a.name,
				"error", err)
			errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
			continue
		}
		pkg.LogDebug(pkg.ComponentAssembler, "released", "action", a.name)
	}
	return errors.Join(errs...)
}

// Commit moves the pending actions into a new stack and leaves rb empty.
func (rb *Rollback) Commit() *Rollback {
	committed := &Rollback{actions: rb.actions}
	rb.actions = nil
	return committed
}
