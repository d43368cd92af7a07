package browser

import "fmt"

// MatchKind selects how a Matcher locates an element.
type MatchKind string

const (
	// MatchRole finds elements by ARIA role and accessible name.
	MatchRole MatchKind = "role"
	// MatchText finds elements by their visible text.
	MatchText MatchKind = "text"
	// MatchCSS finds elements by CSS selector, optionally filtered by text.
	MatchCSS MatchKind = "css"
)

// Matcher locates a page control such as a "Load more" button. Patterns are
// case-insensitive regular expressions in the common subset of Go and
// JavaScript syntax.
type Matcher struct {
	Kind     MatchKind
	Role     string
	Selector string
	Pattern  string
}

// RoleButton matches a button whose accessible name matches pattern.
func RoleButton(pattern string) Matcher {
	return Matcher{Kind: MatchRole, Role: "button", Pattern: pattern}
}

// Text matches an element whose own text matches pattern.
func Text(pattern string) Matcher {
	return Matcher{Kind: MatchText, Pattern: pattern}
}

// CSS matches elements by selector.
func CSS(selector string) Matcher {
	return Matcher{Kind: MatchCSS, Selector: selector}
}

// CSSWithText matches elements by selector whose text matches pattern.
func CSSWithText(selector, pattern string) Matcher {
	return Matcher{Kind: MatchCSS, Selector: selector, Pattern: pattern}
}

func (m Matcher) String() string {
	switch m.Kind {
	case MatchRole:
		return fmt.Sprintf("role=%s[name=/%s/i]", m.Role, m.Pattern)
	case MatchText:
		return fmt.Sprintf("text=/%s/i", m.Pattern)
	default:
		if m.Pattern != "" {
			return fmt.Sprintf("css=%s[text=/%s/i]", m.Selector, m.Pattern)
		}
		return "css=" + m.Selector
	}
}

// DefaultLoadMoreMatchers are tried in order to find a "Load more" control.
var DefaultLoadMoreMatchers = []Matcher{
	RoleButton(`load\s*more`),
	Text(`^\s*load\s*more\s*$`),
	CSSWithText("button", `load\s*more`),
	CSSWithText("a", `load\s*more`),
	CSS(`[data-action='load-more']`),
}
