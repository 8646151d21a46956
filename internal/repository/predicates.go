package repository

import (
	"fmt"
	"strings"
)

// condSet accumulates typed, parameterized WHERE conditions. Optional
// filters are added as placeholder expressions so no user input is ever
// concatenated into SQL.
type condSet struct {
	conds []string
	args  []any
}

// add appends a condition. expr must contain a single %d verb marking the
// placeholder position, e.g. "i.site_id = $%d".
func (c *condSet) add(expr string, arg any) {
	c.args = append(c.args, arg)
	c.conds = append(c.conds, fmt.Sprintf(expr, len(c.args)))
}

// where renders the conditions as an AND chain, or "TRUE" when empty.
func (c *condSet) where() string {
	if len(c.conds) == 0 {
		return "TRUE"
	}
	return strings.Join(c.conds, " AND ")
}
