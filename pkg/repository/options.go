package repository

type OrderType string

const (
	OrderTypeAsc  OrderType = "ASC"
	OrderTypeDesc OrderType = "DESC"
)

type WhereType map[string]any
type SelectType []string

// OrderBy is one sort key. Order is a slice so multi-column sorts keep
// their precedence.
type OrderBy struct {
	Column string
	Type   OrderType
}

type FindOptions struct {
	Select SelectType
	Where  WhereType
	Order  []OrderBy
	Limit  uint
	Offset uint
}

func Select(fields ...string) SelectType {
	return fields
}

func Asc(columns ...string) []OrderBy {
	return orderBy(OrderTypeAsc, columns)
}

func Desc(columns ...string) []OrderBy {
	return orderBy(OrderTypeDesc, columns)
}

func orderBy(t OrderType, columns []string) []OrderBy {
	out := make([]OrderBy, len(columns))
	for i, c := range columns {
		out[i] = OrderBy{Column: c, Type: t}
	}
	return out
}
