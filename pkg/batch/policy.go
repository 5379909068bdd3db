package batch

// Decision is what the orchestrator does next after an event
type Decision int

const (
	// Advance records the current entry as failed and moves on
	Advance Decision = iota
	// Reauthenticate logs in before deciding about the current entry
	Reauthenticate
	// Retry runs the current entry again
	Retry
	// Abort ends the batch; remaining entries are skipped
	Abort
)

func (d Decision) String() string {
	switch d {
	case Advance:
		return "advance"
	case Reauthenticate:
		return "reauthenticate"
	case Retry:
		return "retry"
	case Abort:
		return "abort"
	}
	return "unknown"
}

// Policy decides how a batch reacts to failed updates. A run authenticates
// at most once on failure: the first failed entry triggers a login and a
// retry, later failures are recorded and skipped past. A login that fails
// ends the batch.
//
// Policy holds no I/O so the local orchestrator and the durable workflow
// share it.
type Policy struct {
	// Authenticated is set once a login succeeded in this run
	Authenticated bool
}

// OnFailure is called when an entry's update did not succeed
func (p *Policy) OnFailure() Decision {
	if p.Authenticated {
		return Advance
	}
	return Reauthenticate
}

// OnAuthentication is called with the result of a login attempt
func (p *Policy) OnAuthentication(ok bool) Decision {
	if !ok {
		return Abort
	}
	p.Authenticated = true
	return Retry
}
