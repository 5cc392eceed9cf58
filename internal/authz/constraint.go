package authz

import (
	"fmt"
	"strings"
)

// Filter is a declarative SQL predicate fragment over one resource table.
// Fragments use '?' placeholders; Rebind converts them to pgx positional
// form when the fragment is spliced into a query. The zero value matches
// nothing and must not be used; builders always return either Universal or
// a concrete fragment.
type Filter struct {
	expr      string
	args      []any
	universal bool
}

// Universal returns the filter that matches every row. It is the admin
// principal's constraint for every resource type.
func Universal() Filter {
	return Filter{universal: true}
}

// Where builds a filter from a raw fragment with '?' placeholders.
func Where(expr string, args ...any) Filter {
	return Filter{expr: expr, args: args}
}

// Or combines filters disjunctively. A universal operand absorbs the rest.
func Or(filters ...Filter) Filter {
	exprs := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		if f.universal {
			return Universal()
		}
		exprs = append(exprs, "("+f.expr+")")
		args = append(args, f.args...)
	}
	return Filter{expr: strings.Join(exprs, " OR "), args: args}
}

// And combines filters conjunctively. Universal operands are dropped.
func And(filters ...Filter) Filter {
	exprs := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		if f.universal {
			continue
		}
		exprs = append(exprs, "("+f.expr+")")
		args = append(args, f.args...)
	}
	if len(exprs) == 0 {
		return Universal()
	}
	return Filter{expr: strings.Join(exprs, " AND "), args: args}
}

// IsUniversal reports whether the filter matches every row.
func (f Filter) IsUniversal() bool {
	return f.universal
}

// Args returns the placeholder arguments in order.
func (f Filter) Args() []any {
	return f.args
}

// Rebind renders the fragment with pgx positional placeholders starting at
// start. Universal filters render as TRUE.
func (f Filter) Rebind(start int) string {
	if f.universal {
		return "TRUE"
	}
	var b strings.Builder
	n := start
	for _, r := range f.expr {
		if r == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
