package repository

type OrderType string

const (
	OrderTypeAsc  OrderType = "ASC"
	OrderTypeDesc OrderType = "DESC"
)

type WhereType map[string]interface{}
type SelectType []string

// OrderBy keeps ordering deterministic, unlike a map of columns.
type OrderBy struct {
	Field     string
	Direction OrderType
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

func Desc(field string) OrderBy {
	return OrderBy{Field: field, Direction: OrderTypeDesc}
}

func Asc(field string) OrderBy {
	return OrderBy{Field: field, Direction: OrderTypeAsc}
}
