package database

import (
	"fmt"
	"strings"
)

// queryBuilder accumulates parameterized WHERE conditions.
type queryBuilder struct {
	where  []string
	args   []any
	argIdx int
}

func newQueryBuilder() *queryBuilder {
	return &queryBuilder{argIdx: 1}
}

// Add appends a WHERE condition. Every %s in clause is replaced with the same $N.
func (qb *queryBuilder) Add(clause string, val any) {
	parameterized := strings.ReplaceAll(clause, "%s", fmt.Sprintf("$%d", qb.argIdx))
	qb.where = append(qb.where, parameterized)
	qb.args = append(qb.args, val)
	qb.argIdx++
}

// AddRaw appends a WHERE condition with no parameters.
func (qb *queryBuilder) AddRaw(clause string) {
	qb.where = append(qb.where, clause)
}

// WhereClause returns the full WHERE clause (including "WHERE") or empty string if no conditions.
func (qb *queryBuilder) WhereClause() string {
	if len(qb.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(qb.where, " AND ")
}

// Next reserves the next placeholder for an argument outside the WHERE clause.
func (qb *queryBuilder) Next(val any) string {
	p := fmt.Sprintf("$%d", qb.argIdx)
	qb.args = append(qb.args, val)
	qb.argIdx++
	return p
}

// Args returns all accumulated arguments.
func (qb *queryBuilder) Args() []any {
	return qb.args
}
