package ownership

import (
	"sync/atomic"

	"github.com/drblury/flowcore/internal/runtime/errors"
)

// State is the ownership state of a guarded object.
type State int

const (
	Unbound State = iota
	Bound
	Sealed
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Sealed:
		return "sealed"
	default:
		return "unknown"
	}
}

type guardState struct {
	owner  *Owner
	sealed bool
}

var sealedState = &guardState{sealed: true}

// Guard tracks the owner of one object. The zero value is Unbound.
// A nil state pointer means Unbound.
type Guard struct {
	state atomic.Pointer[guardState]
}

// AssertAccess checks that caller may touch the object.
//
//   - Unbound: binds to caller.
//   - Bound to caller: allowed.
//   - Bound to another owner: a read seals the object, a write fails.
//   - Sealed: reads are allowed, writes fail.
func (g *Guard) AssertAccess(object string, caller *Owner, write bool) error {
	if !checksEnabled.Load() {
		return nil
	}
	if caller == nil {
		caller = Background
	}
	for {
		cur := g.state.Load()
		switch {
		case cur == nil:
			if g.state.CompareAndSwap(nil, &guardState{owner: caller}) {
				return nil
			}
		case cur.sealed:
			if write {
				return &errors.AccessViolationError{Object: object, Caller: caller.String(), Sealed: true}
			}
			return nil
		case cur.owner == caller:
			return nil
		case write:
			return &errors.AccessViolationError{Object: object, Owner: cur.owner.String(), Caller: caller.String()}
		default:
			if g.state.CompareAndSwap(cur, sealedState) {
				return nil
			}
		}
	}
}

// Reset returns the guard to Unbound.
func (g *Guard) Reset() {
	g.state.Store(nil)
}

// Seal makes the object read-only for everyone.
func (g *Guard) Seal() {
	g.state.Store(sealedState)
}

// State returns the current state.
func (g *Guard) State() State {
	cur := g.state.Load()
	switch {
	case cur == nil:
		return Unbound
	case cur.sealed:
		return Sealed
	default:
		return Bound
	}
}

// BoundTo returns the owner the object is bound to, or nil.
func (g *Guard) BoundTo() *Owner {
	cur := g.state.Load()
	if cur == nil || cur.sealed {
		return nil
	}
	return cur.owner
}
