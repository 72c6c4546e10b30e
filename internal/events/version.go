package events

import "errors"

// ErrDuplicate marks an event whose effect is already reflected locally.
// Listeners acknowledge it without reapplying.
var ErrDuplicate = errors.New("event already applied")

// ErrOutOfOrder marks an event that arrived ahead of its predecessor. The
// message is retried until the predecessor has been applied.
var ErrOutOfOrder = errors.New("event arrived ahead of its predecessor")

// Policy decides whether an incoming entity version may be adopted.
type Policy int

const (
	// Sequential adopts only the direct successor of the current version.
	Sequential Policy = iota
	// LatestWins adopts any version newer than the last applied one.
	LatestWins
)

type Decision int

const (
	Apply Decision = iota
	Skip
	// Defer means a predecessor has not arrived yet; the message is retried.
	Defer
)

func (d Decision) String() string {
	switch d {
	case Apply:
		return "apply"
	case Skip:
		return "skip"
	default:
		return "defer"
	}
}

func (p Policy) Decide(current, incoming int) Decision {
	switch p {
	case Sequential:
		switch {
		case incoming == current+1:
			return Apply
		case incoming <= current:
			return Skip
		default:
			return Defer
		}
	default:
		if incoming > current {
			return Apply
		}
		return Skip
	}
}
