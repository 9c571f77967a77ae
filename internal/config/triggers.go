package config

import "git.home.luguber.info/inful/docspipe/internal/event"

// Matches reports whether the trigger configuration accepts the event.
// A run starts only when the triggering event is declared.
func (t TriggerConfig) Matches(ev event.Event) bool {
	switch ev.Type {
	case event.Push:
		if t.Push == nil {
			return false
		}
		if len(t.Push.Branches) == 0 {
			return true
		}
		for _, b := range t.Push.Branches {
			if b == ev.Branch {
				return true
			}
		}
		return false
	case event.PullRequest:
		return t.PullRequest
	case event.Dispatch:
		return t.Dispatch
	case event.Schedule:
		return t.Schedule != nil
	}
	return false
}
