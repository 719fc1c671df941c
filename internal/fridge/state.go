package fridge

import "github.com/brokechef/fridgechef/internal/domain"

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseGenerating
	PhaseSuccess
	PhaseError
	PhaseCreatingRecipe
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGenerating:
		return "generating"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	case PhaseCreatingRecipe:
		return "creating_recipe"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of the coordinator. Seq increases by one
// with every published state; SessionID names the session that produced it
// and is empty for states not tied to a session.
type State struct {
	Phase     Phase
	Recipes   []domain.GeneratedRecipe
	Message   string
	Err       error
	SessionID string
	Seq       uint64
}

// Terminal reports whether the state ends a generation or creation attempt.
func (s State) Terminal() bool {
	return s.Phase == PhaseSuccess || s.Phase == PhaseError
}

func errorState(msg string, err error) State {
	return State{Phase: PhaseError, Message: msg, Err: err}
}

type ToastKind int

const (
	ToastSuccess ToastKind = iota + 1
	ToastError
	ToastLoading
)

func (k ToastKind) String() string {
	switch k {
	case ToastSuccess:
		return "success"
	case ToastError:
		return "error"
	case ToastLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// Notifier receives transient, user-facing notifications.
type Notifier interface {
	Notify(kind ToastKind, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind ToastKind, message string)

func (f NotifierFunc) Notify(kind ToastKind, message string) { f(kind, message) }

type nopNotifier struct{}

func (nopNotifier) Notify(ToastKind, string) {}
