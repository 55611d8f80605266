package selector

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind identifies one way of locating a DOM element. Kinds are ranked by
// how well they survive UI churn: test ids almost never change, raw
// XPath breaks on any structural edit.
type Kind string

const (
	KindTestID      Kind = "testid"
	KindID          Kind = "id"
	KindName        Kind = "name"
	KindAriaLabel   Kind = "aria_label"
	KindRoleAndText Kind = "role_and_text"
	KindText        Kind = "text"
	KindCSS         Kind = "css"
	KindXPath       Kind = "xpath"
)

// canonicalOrder maps each kind to its resolution priority, lowest first.
var canonicalOrder = map[Kind]int{
	KindTestID:      0,
	KindID:          1,
	KindName:        2,
	KindAriaLabel:   3,
	KindRoleAndText: 4,
	KindText:        5,
	KindCSS:         6,
	KindXPath:       7,
}

// Priority returns the canonical rank of the kind; unknown kinds sort last.
func (k Kind) Priority() int {
	if p, ok := canonicalOrder[k]; ok {
		return p
	}
	return len(canonicalOrder)
}

// Valid reports whether the kind is one of the recognized variants.
func (k Kind) Valid() bool {
	_, ok := canonicalOrder[k]
	return ok
}

// Candidate is one recorded way of locating a logical element.
// Value carries the payload for every kind except role_and_text, which
// uses Role and Text.
type Candidate struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value,omitempty"`
	Role  string `json:"role,omitempty"`
	Text  string `json:"text,omitempty"`
}

func (c Candidate) String() string {
	if c.Kind == KindRoleAndText {
		return fmt.Sprintf("%s(role=%q text=%q)", c.Kind, c.Role, c.Text)
	}
	return fmt.Sprintf("%s(%q)", c.Kind, c.Value)
}

// Validate checks that the candidate carries the payload its kind needs.
func (c Candidate) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("unknown selector kind %q", c.Kind)
	}
	if c.Kind == KindRoleAndText {
		if strings.TrimSpace(c.Role) == "" || strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("role_and_text candidate requires role and text")
		}
		return nil
	}
	if strings.TrimSpace(c.Value) == "" {
		return fmt.Errorf("%s candidate requires a value", c.Kind)
	}
	return nil
}

// SortCandidates returns a copy of candidates in canonical priority
// order. The sort is stable so recordings that carry several candidates
// of the same kind keep their relative order. Recordings are expected to
// store candidates canonically already; the resolver re-sorts anyway so
// a hand-edited or older recording cannot subvert the priority contract.
func SortCandidates(candidates []Candidate) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Kind.Priority() < sorted[j].Kind.Priority()
	})
	return sorted
}

// InCanonicalOrder reports whether candidates are already stored in
// canonical priority order.
func InCanonicalOrder(candidates []Candidate) bool {
	for i := 1; i < len(candidates); i++ {
		if candidates[i-1].Kind.Priority() > candidates[i].Kind.Priority() {
			return false
		}
	}
	return true
}

var simpleIdentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// roleTagEquivalents lets role_and_text match elements that carry the
// role implicitly through their tag rather than a role attribute.
var roleTagEquivalents = map[string]string{
	"button": "button",
	"link":   "a",
}

// Query translates the candidate into an executable lookup: either a CSS
// selector or an XPath expression. testid/id/name/aria_label compile to
// attribute CSS; role_and_text and text need XPath because CSS cannot
// match on text content.
func (c Candidate) Query() (query string, byXPath bool, err error) {
	if err := c.Validate(); err != nil {
		return "", false, err
	}

	switch c.Kind {
	case KindTestID:
		return fmt.Sprintf(`[data-testid=%s]`, cssAttrValue(c.Value)), false, nil
	case KindID:
		if simpleIdentPattern.MatchString(c.Value) {
			return "#" + c.Value, false, nil
		}
		return fmt.Sprintf(`[id=%s]`, cssAttrValue(c.Value)), false, nil
	case KindName:
		return fmt.Sprintf(`[name=%s]`, cssAttrValue(c.Value)), false, nil
	case KindAriaLabel:
		return fmt.Sprintf(`[aria-label=%s]`, cssAttrValue(c.Value)), false, nil
	case KindRoleAndText:
		role := strings.TrimSpace(c.Role)
		cond := fmt.Sprintf(`@role=%s`, xpathLiteral(role))
		if tag, ok := roleTagEquivalents[strings.ToLower(role)]; ok {
			cond = fmt.Sprintf(`%s or self::%s`, cond, tag)
		}
		return fmt.Sprintf(`//*[(%s) and contains(normalize-space(.), %s)]`,
			cond, xpathLiteral(c.Text)), true, nil
	case KindText:
		return fmt.Sprintf(`//*[contains(normalize-space(text()), %s)]`, xpathLiteral(c.Value)), true, nil
	case KindCSS:
		return c.Value, false, nil
	case KindXPath:
		return c.Value, true, nil
	}
	return "", false, fmt.Errorf("unknown selector kind %q", c.Kind)
}

// cssAttrValue quotes a string for use as a CSS attribute value.
func cssAttrValue(v string) string {
	escaped := strings.ReplaceAll(v, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// xpathLiteral quotes a string for use inside an XPath expression.
// XPath 1.0 has no escape sequences, so a value containing both quote
// characters has to be stitched together with concat().
func xpathLiteral(v string) string {
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	if !strings.Contains(v, `'`) {
		return `'` + v + `'`
	}
	parts := strings.Split(v, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if part != "" {
			quoted = append(quoted, `"`+part+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
