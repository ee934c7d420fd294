package history

import (
	"strconv"
	"strings"
)

// Plan is an executable query plan: projection, source, filters, and
// ordering, assembled by ordinary function composition. Values are always
// parameterized, never interpolated.
type Plan struct {
	Columns []string
	From    string
	Joins   []string
	Where   []string
	OrderBy []string
	Limit   int // 0 = no limit
	Args    []any
}

// SQL assembles the statement text. Args returns positionally with it.
func (p Plan) SQL() string {
	return p.sql(true)
}

func (p Plan) sql(withOrder bool) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(p.Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(p.From)
	for _, join := range p.Joins {
		b.WriteByte(' ')
		b.WriteString(join)
	}
	if len(p.Where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(p.Where, " AND "))
	}
	if withOrder && len(p.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(p.OrderBy, ", "))
	}
	if withOrder && p.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(p.Limit))
	}
	return b.String()
}

// UnionAll merges two plans into one compound statement with a shared outer
// ordering and limit. Branch-level ORDER BY and LIMIT are dropped (SQLite
// forbids them inside compound selects); the branches must project identical
// column sets.
func UnionAll(first, second Plan, orderBy []string, limit int) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT * FROM (")
	b.WriteString(first.sql(false))
	b.WriteString(" UNION ALL ")
	b.WriteString(second.sql(false))
	b.WriteString(")")
	if len(orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(orderBy, ", "))
	}
	if limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(limit))
	}
	args := make([]any, 0, len(first.Args)+len(second.Args))
	args = append(args, first.Args...)
	args = append(args, second.Args...)
	return b.String(), args
}
