package pipeline

// Event is an incoming repository event, as delivered by the source
// control system's webhook.
type Event struct {
	Kind     string `json:"kind"`
	Branch   string `json:"branch"`
	Remote   string `json:"remote"`
	Revision string `json:"revision"`
}

// Matches reports whether the event should start a run: the kind has to be
// one of the trigger's events and the branch has to be literally present in
// the trigger's branch list. A non-match is a normal no-op, never an error.
func (t Trigger) Matches(ev Event) bool {
	kindOK := false
	for _, kind := range t.Events {
		if kind == ev.Kind {
			kindOK = true
			break
		}
	}
	if !kindOK {
		return false
	}

	for _, branch := range t.Branches {
		if branch == ev.Branch {
			return true
		}
	}

	return false
}
