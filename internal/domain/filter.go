package domain

// Operator is a comparison applied by a WhereInput term.
type Operator string

const (
	OpEquals           Operator = "EQUALS"
	OpGreaterThan      Operator = "GREATER_THAN"
	OpGreaterThanEqual Operator = "GREATER_THAN_EQUALS"
	OpLessThan         Operator = "LESS_THAN"
	OpLessThanEqual    Operator = "LESS_THAN_EQUALS"
	OpIn               Operator = "IN"
	OpRegexMatch       Operator = "REGEX_MATCH"
	// OpSearch is accepted on input but not supported; terms using it are dropped.
	OpSearch Operator = "SEARCH"
)

// SortDirection orders a SortInput.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// WhereInput is a single filter term. Value carries scalar operands and
// Values carries the IN list.
type WhereInput struct {
	Key      string   `json:"key"`
	Value    *string  `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"`
	Operator Operator `json:"operator"`
}

// SortInput is one component of a composite sort key.
type SortInput struct {
	By   string        `json:"by"`
	Type SortDirection `json:"type"`
}

// QueryArgs is the listing request: zero-indexed page, page size, conjunctive
// and disjunctive filter groups, and an ordered sort.
type QueryArgs struct {
	Limit int          `json:"limit"`
	Page  int          `json:"page"`
	And   []WhereInput `json:"and,omitempty"`
	Or    []WhereInput `json:"or,omitempty"`
	Sort  []SortInput  `json:"sort,omitempty"`
}
