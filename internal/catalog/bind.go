package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"luachboard/internal/calc"
	appLog "luachboard/internal/log"
	"luachboard/internal/model"
)

// paramForm matches "name(number)".
var paramForm = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*\(\s*(-?\d+(?:\.\d+)?)\s*\)\s*$`)

// UnresolvedError is returned when no calculator method fits a
// descriptor.
type UnresolvedError struct {
	ID     string
	Method string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("zman %q: no calculator method matches %q", e.ID, e.Method)
}

// AmbiguousError is returned when the fuzzy step finds several methods.
type AmbiguousError struct {
	ID         string
	Method     string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("zman %q: method %q is ambiguous (%s)", e.ID, e.Method, strings.Join(e.Candidates, ", "))
}

// Binding is a descriptor resolved to a concrete calculator call.
type Binding struct {
	ID     string
	Method string
	Arg    float64
	HasArg bool
	// Fuzzy is set when the name was found by the loose match.
	Fuzzy bool
	// Unresolved holds the bind failure; such entries compute as absent.
	Unresolved error
}

// Resolved reports whether the binding names a callable method.
func (b Binding) Resolved() bool { return b.Unresolved == nil }

// Table is a catalog snapshot bound to one calculator. Entries follow
// catalog order, one binding per descriptor.
type Table struct {
	Version     uint64
	Descriptors []model.ZmanDescriptor
	Bindings    []Binding
}

// Resolved counts the bindings that can be computed.
func (t *Table) Resolved() int {
	n := 0
	for _, b := range t.Bindings {
		if b.Resolved() {
			n++
		}
	}
	return n
}

// Err joins every bind failure as a resolution error, or nil when all
// descriptors resolved.
func (t *Table) Err() error {
	var errs []error
	for _, b := range t.Bindings {
		if !b.Resolved() {
			errs = append(errs, b.Unresolved)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return model.NewResolutionError("bind zmanim catalog", errors.Join(errs...))
}

// Bind resolves every descriptor once. A descriptor that fails is logged
// and kept in the table as unresolved so the rest still compute.
func (c *Catalog) Bind(methods calc.MethodSet) *Table {
	c.mu.RLock()
	descs := append([]model.ZmanDescriptor(nil), c.list...)
	version := c.version
	c.mu.RUnlock()

	t := &Table{Version: version, Descriptors: descs, Bindings: make([]Binding, 0, len(descs))}
	for _, d := range descs {
		b, err := Resolve(d, methods)
		if err != nil {
			appLog.Warn("zman left unbound", "id", d.ID, "method", d.Method,
				"kind", string(model.KindResolution), "err", err.Error())
			b = Binding{ID: d.ID, Method: d.Method, Unresolved: err}
		}
		t.Bindings = append(t.Bindings, b)
	}
	return t
}

// Resolve binds a single descriptor: an explicit Param or a "name(number)"
// method selects a one-argument call, an exact name a zero-argument call,
// and anything else goes through the loose match. A descriptor without a
// method is looked up by its id.
func Resolve(d model.ZmanDescriptor, methods calc.MethodSet) (Binding, error) {
	method := strings.TrimSpace(d.Method)
	if method == "" {
		method = d.ID
	}
	b := Binding{ID: d.ID, Method: method}

	if d.Param != nil {
		if !methods.HasOne(method) {
			return Binding{}, &UnresolvedError{ID: d.ID, Method: fmt.Sprintf("%s(%v)", method, *d.Param)}
		}
		b.Arg, b.HasArg = *d.Param, true
		return b, nil
	}

	if methods.HasZero(method) {
		return b, nil
	}

	if m := paramForm.FindStringSubmatch(method); m != nil {
		arg, err := strconv.ParseFloat(m[2], 64)
		if err == nil && methods.HasOne(m[1]) {
			b.Method, b.Arg, b.HasArg = m[1], arg, true
			return b, nil
		}
		return Binding{}, &UnresolvedError{ID: d.ID, Method: method}
	}

	name, err := fuzzyMatch(d.ID, method, methods.Zero)
	if err != nil {
		return Binding{}, err
	}
	appLog.Warn("zman method matched loosely", "id", d.ID, "method", method, "resolved", name)
	b.Method, b.Fuzzy = name, true
	return b, nil
}

// normalize strips a get/calculate prefix, case-folds and drops anything
// that is not a letter or digit.
func normalize(s string) string {
	lower := strings.ToLower(s)
	for _, p := range []string{"get", "calculate"} {
		if strings.HasPrefix(lower, p) && len(lower) > len(p) {
			lower = lower[len(p):]
			break
		}
	}
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// fuzzyMatch accepts exactly one method whose normalized name contains
// the wanted one. Several candidates are an error, even when one of them
// is an exact normalized match.
func fuzzyMatch(id, method string, candidates []string) (string, error) {
	want := normalize(method)
	if want == "" {
		return "", &UnresolvedError{ID: id, Method: method}
	}
	var found []string
	for _, c := range candidates {
		if strings.Contains(normalize(c), want) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return "", &UnresolvedError{ID: id, Method: method}
	case 1:
		return found[0], nil
	default:
		return "", &AmbiguousError{ID: id, Method: method, Candidates: found}
	}
}
