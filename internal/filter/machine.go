package filter

import "context"

// Listener receives the full selection after every committed transition.
type Listener func(ctx context.Context, s Selection)

// Observer is told about each transition after it is applied. It must not block and has no way
// to fail the transition.
type Observer interface {
	Observe(ctx context.Context, a Action, s Selection)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, a Action, s Selection)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, a Action, s Selection) { f(ctx, a, s) }

// Machine owns one selection and dispatches actions against it. Not safe for concurrent use.
type Machine struct {
	state    Selection
	listener Listener
	observer Observer
}

// MachineOption customises a Machine.
type MachineOption func(*Machine)

// WithListener registers the listener notified with each non-initial selection.
func WithListener(l Listener) MachineOption {
	return func(m *Machine) { m.listener = l }
}

// WithObserver registers the analytics observer.
func WithObserver(o Observer) MachineOption {
	return func(m *Machine) { m.observer = o }
}

// WithSelection resumes from a previously committed selection instead of the mount state.
func WithSelection(s Selection) MachineOption {
	return func(m *Machine) { m.state = s }
}

// NewMachine returns a machine in the mount state. The listener is not called for it.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{state: Initial()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// State returns the current selection.
func (m *Machine) State() Selection { return m.state }

// Dispatch reduces a into the current state, reports it to the observer and then notifies the
// listener once with the new selection.
func (m *Machine) Dispatch(ctx context.Context, a Action) Selection {
	m.state = Reduce(m.state, a)
	if m.observer != nil {
		m.observer.Observe(ctx, a, m.state)
	}
	if m.listener != nil && !m.state.Initial {
		m.listener(ctx, m.state)
	}
	return m.state
}
