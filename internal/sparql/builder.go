package sparql

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrInvalidTerm is returned when a value cannot be embedded safely.
var ErrInvalidTerm = errors.New("sparql: invalid term")

// Term is a value already rendered as SPARQL syntax.
type Term struct{ text string }

// String returns the rendered SPARQL text.
func (t Term) String() string { return t.text }

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Literal renders s as a double-quoted string literal.
func Literal(s string) Term {
	return Term{text: `"` + literalEscaper.Replace(s) + `"`}
}

// RegexLiteral renders s as a string literal matching s verbatim when used as
// the pattern argument of regex().
func RegexLiteral(s string) Term {
	return Literal(regexp.QuoteMeta(s))
}

// IRI renders s as an IRI reference. Characters forbidden by the IRIREF
// production are rejected.
func IRI(s string) (Term, error) {
	if s == "" {
		return Term{}, fmt.Errorf("%w: empty iri", ErrInvalidTerm)
	}
	for _, r := range s {
		if r <= 0x20 || strings.ContainsRune("<>\"{}|^`\\", r) {
			return Term{}, fmt.Errorf("%w: iri %q contains %q", ErrInvalidTerm, s, r)
		}
	}
	return Term{text: "<" + s + ">"}, nil
}

// IRIList renders iris as a comma separated list for an IN filter.
func IRIList(iris []string) (Term, error) {
	if len(iris) == 0 {
		return Term{}, fmt.Errorf("%w: empty iri list", ErrInvalidTerm)
	}
	parts := make([]string, 0, len(iris))
	for _, s := range iris {
		t, err := IRI(s)
		if err != nil {
			return Term{}, err
		}
		parts = append(parts, t.text)
	}
	return Term{text: strings.Join(parts, ",\n")}, nil
}

// Args binds placeholder names to rendered terms.
type Args map[string]Term

// Template is query text with %{name} placeholders.
type Template struct {
	text  string
	names []string
}

var placeholder = regexp.MustCompile(`%\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// NewTemplate parses text and records its placeholders.
func NewTemplate(text string) *Template {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	sort.Strings(names)
	return &Template{text: text, names: names}
}

// Placeholders lists the placeholder names in sorted order.
func (t *Template) Placeholders() []string {
	return append([]string(nil), t.names...)
}

// Render substitutes every placeholder. Missing or unknown arguments are
// errors so a template and its call site cannot drift apart silently.
func (t *Template) Render(args Args) (string, error) {
	for _, name := range t.names {
		if _, ok := args[name]; !ok {
			return "", fmt.Errorf("%w: missing argument %q", ErrInvalidTerm, name)
		}
	}
	if len(args) != len(t.names) {
		for name := range args {
			if !t.has(name) {
				return "", fmt.Errorf("%w: unknown argument %q", ErrInvalidTerm, name)
			}
		}
	}
	return placeholder.ReplaceAllStringFunc(t.text, func(m string) string {
		return args[m[2:len(m)-1]].text
	}), nil
}

func (t *Template) has(name string) bool {
	i := sort.SearchStrings(t.names, name)
	return i < len(t.names) && t.names[i] == name
}
