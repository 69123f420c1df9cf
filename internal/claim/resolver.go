package claim

import (
	"regexp"
	"strings"
)

type Method int

const (
	Exact Method = iota + 1
	SuffixStrip
	Concatenation
)

// LedgerMethod is the claim registry entry point used for submissions of this shape.
func (m Method) LedgerMethod() string {
	switch m {
	case Exact:
		return "submitExactClaim"
	case SuffixStrip:
		return "submitPrefixClaim"
	case Concatenation:
		return "submitCombinedClaim"
	}
	return ""
}

func (m Method) String() string {
	switch m {
	case Exact:
		return "exact"
	case SuffixStrip:
		return "suffix-strip"
	case Concatenation:
		return "concatenation"
	}
	return "unknown"
}

// ParseMethod accepts either the short name or the ledger entry point.
func ParseMethod(s string) (Method, bool) {
	for _, m := range []Method{Exact, SuffixStrip, Concatenation} {
		if s == m.String() || s == m.LedgerMethod() {
			return m, true
		}
	}
	return 0, false
}

type Rule struct {
	Pattern *regexp.Regexp
	Method  Method
}

// Shape is one claimable label derived from a DNS name.
type Shape struct {
	Label  string
	Method Method
}

// DefaultRules lists the claim shapes in priority order. The length bounds
// keep every derived label within 3-6 characters.
var DefaultRules = []Rule{
	{regexp.MustCompile(`^([^.]{3,6})\.[^.]+$`), Exact},
	{regexp.MustCompile(`^([^.]{3,6})eth\.[^.]+$`), SuffixStrip},
	{regexp.MustCompile(`^([^.]{1,4})\.([^.]{2})$`), Concatenation},
	{regexp.MustCompile(`^([^.]{1,3})\.([^.]{3})$`), Concatenation},
	{regexp.MustCompile(`^([^.]{1,2})\.([^.]{4})$`), Concatenation},
	{regexp.MustCompile(`^([^.])\.([^.]{5})$`), Concatenation},
}

type Resolver struct {
	rules []Rule
}

func NewResolver(rules []Rule) *Resolver {
	return &Resolver{rules: rules}
}

var defaultResolver = NewResolver(DefaultRules)

// Resolve applies the default rule table.
func Resolve(name string) []Shape {
	return defaultResolver.Resolve(name)
}

// Resolve returns one shape per matching rule, in rule order. Rules are not
// exclusive, so a name may yield several shapes.
func (r *Resolver) Resolve(name string) []Shape {
	var shapes []Shape
	for _, rule := range r.rules {
		m := rule.Pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		shapes = append(shapes, Shape{
			Label:  strings.Join(m[1:], ""),
			Method: rule.Method,
		})
	}
	return shapes
}

// Find returns the shape of name with the given label and method.
func (r *Resolver) Find(name, label string, method Method) (Shape, bool) {
	for _, s := range r.Resolve(name) {
		if s.Label == label && s.Method == method {
			return s, true
		}
	}
	return Shape{}, false
}
