package repositories

import (
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

// Op is a comparison operator usable in a Cond
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "<>"
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpIn  Op = "IN"
	// OpNull matches NULL when Value is true and NOT NULL otherwise
	OpNull Op = "IS NULL"
)

// Cond is one predicate on a column
type Cond struct {
	Field string
	Op    Op
	Value interface{}
}

// Query is a filtered, ordered, paged selection
type Query struct {
	Conds  []Cond
	Order  string
	Limit  int
	Offset int
}

// Where starts a query from conditions
func Where(conds ...Cond) Query {
	return Query{Conds: conds}
}

// OrderBy returns a copy of q with the given ordering
func (q Query) OrderBy(order string) Query {
	q.Order = order
	return q
}

// Page returns a copy of q limited to one page
func (q Query) Page(offset, limit int) Query {
	q.Offset = offset
	q.Limit = limit
	return q
}

func Eq(field string, v interface{}) Cond  { return Cond{Field: field, Op: OpEq, Value: v} }
func Ne(field string, v interface{}) Cond  { return Cond{Field: field, Op: OpNe, Value: v} }
func Lt(field string, v interface{}) Cond  { return Cond{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v interface{}) Cond { return Cond{Field: field, Op: OpLte, Value: v} }
func Gt(field string, v interface{}) Cond  { return Cond{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v interface{}) Cond { return Cond{Field: field, Op: OpGte, Value: v} }
func In(field string, v interface{}) Cond  { return Cond{Field: field, Op: OpIn, Value: v} }
func IsNull(field string) Cond             { return Cond{Field: field, Op: OpNull, Value: true} }
func NotNull(field string) Cond            { return Cond{Field: field, Op: OpNull, Value: false} }

var (
	fieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	orderPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*( (ASC|DESC|asc|desc))?(, ?[a-z_][a-z0-9_]*( (ASC|DESC|asc|desc))?)*$`)
)

// apply adds the query's predicates to db
func (q Query) apply(db *gorm.DB) (*gorm.DB, error) {
	for _, c := range q.Conds {
		if !fieldPattern.MatchString(c.Field) {
			return nil, fmt.Errorf("invalid query field %q", c.Field)
		}
		switch c.Op {
		case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIn:
			db = db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Op), c.Value)
		case OpNull:
			if isNull, _ := c.Value.(bool); isNull {
				db = db.Where(c.Field + " IS NULL")
			} else {
				db = db.Where(c.Field + " IS NOT NULL")
			}
		default:
			return nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
	}
	return db, nil
}

// applyPage adds ordering and paging to db
func (q Query) applyPage(db *gorm.DB) (*gorm.DB, error) {
	if q.Order != "" {
		if !orderPattern.MatchString(q.Order) {
			return nil, fmt.Errorf("invalid ordering %q", q.Order)
		}
		db = db.Order(q.Order)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	return db, nil
}
