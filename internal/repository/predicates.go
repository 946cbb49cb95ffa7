package repository

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// predicates collects AND-ed WHERE conditions with positional parameters. Each ? in a condition binds
// the next value; a condition added with a single value binds every ? to it.
type predicates struct {
	conds []string
	args  []interface{}
}

func (p *predicates) add(cond string, values ...interface{}) {
	var b strings.Builder
	bound := 0
	for i := 0; i < len(cond); i++ {
		if cond[i] != '?' {
			b.WriteByte(cond[i])
			continue
		}
		if len(values) != 1 || bound == 0 {
			p.args = append(p.args, values[bound])
			bound++
		}
		fmt.Fprintf(&b, "$%d", len(p.args))
	}
	p.conds = append(p.conds, b.String())
}

// addIf adds cond only when value is not the zero string.
func (p *predicates) addIf(value, cond string) {
	if value != "" {
		p.add(cond, value)
	}
}

func (p *predicates) where() string {
	if len(p.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.conds, " AND ")
}

func stringArray[S ~string](values []S) interface{} {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return pq.Array(out)
}

func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}
