// Package hooking lets observers attach to the events raised by the device
// model and the GC policies without the core knowing who listens.
//
// A Device raises block erase, compaction and page move events; a policy
// raises one event per GC invocation. Loggers, metrics and tests are hooks.
package hooking

import "fmt"

// HookPos names a site where hooks are invoked, such as a block being erased.
// Positions are compared by pointer, so each one is declared once as a
// package-level variable next to the code raising it.
type HookPos struct {
	Name string
}

func (p *HookPos) String() string {
	return p.Name
}

// HookCtx carries what happened at a hook site. Domain is the device or
// policy raising the event, Item the block id the event is about and Detail
// holds event-specific data such as the number of pages moved.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable is implemented by the device and the policies.
type Hookable interface {
	// AcceptHook registers a hook. A hook can be registered only once.
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int

	// Hooks returns the hooks in registration order.
	Hooks() []Hook
}

// Hook observes events. Func runs on the caller's goroutine, in the middle
// of a device or policy operation, and must not call back into it.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function into a Hook. Hooks are compared by
// identity when registered, so wrap the function once and keep the pointer.
type HookFunc struct {
	F func(ctx HookCtx)
}

// Func calls the wrapped function.
func (h *HookFunc) Func(ctx HookCtx) {
	h.F(ctx)
}

// OnPos returns a hook that calls f only for events raised at pos.
func OnPos(pos *HookPos, f func(ctx HookCtx)) *HookFunc {
	return &HookFunc{F: func(ctx HookCtx) {
		if ctx.Pos == pos {
			f(ctx)
		}
	}}
}

// HookableBase keeps the hooks of a device or policy. Embed it and guard
// InvokeHook with NumHooks() > 0 on hot paths.
type HookableBase struct {
	hookList []Hook
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// Hooks returns the hooks in registration order.
func (h *HookableBase) Hooks() []Hook {
	return h.hookList
}

// AcceptHook registers a hook. Registering the same hook twice panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	for _, registered := range h.hookList {
		if registered == hook {
			panic(fmt.Sprintf("hook %T registered twice", hook))
		}
	}

	h.hookList = append(h.hookList, hook)
}

// InvokeHook passes ctx to every hook in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}
