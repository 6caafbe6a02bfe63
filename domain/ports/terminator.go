package ports

// Terminator ends the process when no envelope can be produced.
// Terminate must not return; if it does, the caller panics.
type Terminator interface {
	Terminate(reason error)
}

// TerminatorFunc adapts a function to Terminator.
type TerminatorFunc func(reason error)

// Terminate calls f(reason).
func (f TerminatorFunc) Terminate(reason error) {
	f(reason)
}
