package vectorstore

import (
	"fmt"
	"sort"
)

// PredicateOp enumerates the supported metadata filter operators.
type PredicateOp int

const (
	// OpEq matches values equal to the operand.
	OpEq PredicateOp = iota
	// OpIn matches values contained in the operand set.
	OpIn
	// OpGt matches values strictly greater than the operand.
	OpGt
	// OpGte matches values greater than or equal to the operand.
	OpGte
	// OpLt matches values strictly less than the operand.
	OpLt
	// OpLte matches values less than or equal to the operand.
	OpLte
)

// String returns the operator's filter-map spelling.
func (op PredicateOp) String() string {
	switch op {
	case OpEq:
		return "$eq"
	case OpIn:
		return "$in"
	case OpGt:
		return "$gt"
	case OpGte:
		return "$gte"
	case OpLt:
		return "$lt"
	case OpLte:
		return "$lte"
	}
	return "unknown"
}

// Predicate is one typed metadata condition. Predicates from a single filter
// map combine with AND semantics. Each backend translates predicates to its
// native form; SQL backends must parameterize, never concatenate values.
type Predicate struct {
	Field  string
	Op     PredicateOp
	Value  interface{}   // operand for Eq and range operators
	Values []interface{} // operand set for In
}

// ParseFilter converts a generic filter map into a predicate tree. Plain
// values mean equality; nested maps carry operators ($in, $gt, $gte, $lt,
// $lte). Unknown operators are validation errors. Fields are emitted in
// sorted order so translations are deterministic.
func ParseFilter(filter map[string]interface{}) ([]Predicate, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var predicates []Predicate
	for _, field := range fields {
		value := filter[field]
		ops, isMap := value.(map[string]interface{})
		if !isMap {
			predicates = append(predicates, Predicate{Field: field, Op: OpEq, Value: value})
			continue
		}
		opNames := make([]string, 0, len(ops))
		for name := range ops {
			opNames = append(opNames, name)
		}
		sort.Strings(opNames)
		for _, name := range opNames {
			operand := ops[name]
			switch name {
			case "$in":
				values, err := toSlice(operand)
				if err != nil {
					return nil, validationf("filter %s $in: %v", field, err)
				}
				predicates = append(predicates, Predicate{Field: field, Op: OpIn, Values: values})
			case "$gt":
				predicates = append(predicates, Predicate{Field: field, Op: OpGt, Value: operand})
			case "$gte":
				predicates = append(predicates, Predicate{Field: field, Op: OpGte, Value: operand})
			case "$lt":
				predicates = append(predicates, Predicate{Field: field, Op: OpLt, Value: operand})
			case "$lte":
				predicates = append(predicates, Predicate{Field: field, Op: OpLte, Value: operand})
			case "$eq":
				predicates = append(predicates, Predicate{Field: field, Op: OpEq, Value: operand})
			default:
				return nil, validationf("filter %s: unknown operator %q", field, name)
			}
		}
	}
	return predicates, nil
}

// Matches evaluates the predicate against a metadata map in process. Used by
// the memory backend and by DeleteByFilter scans.
func (p Predicate) Matches(metadata map[string]interface{}) bool {
	value, ok := metadata[p.Field]
	if !ok {
		return false
	}
	switch p.Op {
	case OpEq:
		return looseEqual(value, p.Value)
	case OpIn:
		for _, candidate := range p.Values {
			if looseEqual(value, candidate) {
				return true
			}
		}
		return false
	case OpGt, OpGte, OpLt, OpLte:
		a, okA := toFloat(value)
		b, okB := toFloat(p.Value)
		if !okA || !okB {
			return false
		}
		switch p.Op {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	}
	return false
}

// MatchesAll reports whether metadata satisfies every predicate.
func MatchesAll(predicates []Predicate, metadata map[string]interface{}) bool {
	for _, p := range predicates {
		if !p.Matches(metadata) {
			return false
		}
	}
	return true
}

// looseEqual compares metadata values with numeric coercion, so int 5 and
// float64 5 (a JSON round-trip artifact) compare equal.
func looseEqual(a, b interface{}) bool {
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			return fa == fb
		}
		return false
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toSlice(v interface{}) ([]interface{}, error) {
	switch s := v.(type) {
	case []interface{}:
		if len(s) == 0 {
			return nil, fmt.Errorf("empty value set")
		}
		return s, nil
	case []string:
		if len(s) == 0 {
			return nil, fmt.Errorf("empty value set")
		}
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list, got %T", v)
}
