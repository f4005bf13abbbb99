// Package detector guesses whether the controlled tab is logged in to the
// loyalty site. The sites expose no "am I authenticated" endpoint, so the
// verdict is a weighted heuristic and only ever informs the UI.
package detector

import "github.com/use-agent/offersync/models"

// Signal names.
const (
	SignalAccountLink   = "account_link"
	SignalLogoutControl = "logout_control"
	SignalGreeting      = "greeting"
	signalKeywordPrefix = "keyword:"
)

// Signals are the observations a verdict is scored from.
type Signals struct {
	// Strong signals only appear for a logged-in user.
	Strong []string
	// Weak signals are suggestive on their own.
	Weak []string
	// Cookie is set when an auth-looking cookie is present.
	Cookie bool
}

// Score turns signals into a verdict. A user is logged in with one strong
// signal, two weak ones, or an auth cookie plus one weak signal.
func Score(s Signals) models.SessionVerdict {
	strong := len(s.Strong)
	weak := len(s.Weak)
	cookie := 0
	if s.Cookie {
		cookie = 1
	}
	return models.SessionVerdict{
		LoggedIn:  strong >= 1 || weak >= 2 || (s.Cookie && weak >= 1),
		Score:     3*strong + weak + cookie,
		Strong:    s.Strong,
		Weak:      s.Weak,
		CookieHit: s.Cookie,
	}
}
