package authsync

import (
	"strings"

	"github.com/dgellow/bid-front/internal/loginflow"
)

// Listener is the tab-side consumer of sync events.
type Listener struct {
	currentPath func() string
	navigate    func(href string)
}

// NewListener creates a Listener. currentPath returns the tab's path plus
// query; navigate performs the forced login redirect.
func NewListener(currentPath func() string, navigate func(href string)) *Listener {
	return &Listener{currentPath: currentPath, navigate: navigate}
}

// Handle processes one raw payload and reports whether it navigated.
func (l *Listener) Handle(raw []byte) bool {
	ev, ok := ParseEvent(raw)
	if !ok {
		return false
	}
	return l.HandleEvent(ev)
}

func (l *Listener) HandleEvent(ev Event) bool {
	current := l.currentPath()
	path := current
	if i := strings.IndexAny(current, "?#"); i >= 0 {
		path = current[:i]
	}
	if !ShouldForceLoginRedirect(path, ev) {
		return false
	}
	l.navigate(loginflow.BuildLoginHref(loginflow.LoginParams{ReturnTo: current}))
	return true
}
