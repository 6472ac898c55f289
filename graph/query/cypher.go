package query

import (
	"fmt"
	"strings"
)

// Statement incrementally builds a single read-only Cypher statement with
// parameterized predicates. Parameters are named $p0, $p1, ... in the order
// their predicates were added.
//
// Example:
//
//	stmt := Match("WebService", "w").
//	    Where(Predicate{Field: "risk_score", Op: Gte, Value: 60}).
//	    Return("url", "risk_score").
//	    OrderByDesc("risk_score").
//	    Limit(10)
//	cypher, params := stmt.Build()
//	// MATCH (w:WebService) WHERE w.risk_score >= $p0
//	// RETURN w.url, w.risk_score ORDER BY w.risk_score DESC LIMIT 10
type Statement struct {
	alias      string
	match      string
	traversals []string
	conditions []string
	returns    string
	orderBy    string
	limit      int
	params     map[string]any
}

// Match starts a statement matching nodes of the given type under an alias.
func Match(nodeType, alias string) *Statement {
	return &Statement{
		alias:  alias,
		match:  fmt.Sprintf("MATCH (%s:%s)", alias, nodeType),
		params: make(map[string]any),
	}
}

// Through appends an outbound relationship traversal to the MATCH pattern
// and shifts the statement's working alias to the traversal target, so that
// subsequent Where and Return calls refer to the target node.
func (s *Statement) Through(t Traversal) *Statement {
	s.traversals = append(s.traversals,
		fmt.Sprintf("-[:%s]->(%s:%s)", t.Relationship, t.TargetAlias, t.TargetType))
	s.alias = t.TargetAlias
	return s
}

// Where adds predicates against the working alias. Values are always bound
// as parameters, never interpolated.
func (s *Statement) Where(preds ...Predicate) *Statement {
	for _, pred := range preds {
		name := fmt.Sprintf("p%d", len(s.params))
		s.conditions = append(s.conditions, buildCondition(pred, s.alias, name))
		if requiresValue(pred.Op) {
			s.params[name] = pred.Value
		}
	}
	return s
}

// Return selects properties of the working alias. With no fields the whole
// node is returned.
func (s *Statement) Return(fields ...string) *Statement {
	s.returns = BuildReturn(s.alias, fields)
	return s
}

// ReturnAliased selects properties with explicit result column names,
// given as property:column pairs in order.
func (s *Statement) ReturnAliased(pairs ...[2]string) *Statement {
	var refs []string
	for _, p := range pairs {
		refs = append(refs, fmt.Sprintf("%s.%s AS %s", s.alias, p[0], p[1]))
	}
	s.returns = "RETURN " + strings.Join(refs, ", ")
	return s
}

// OrderByDesc orders results by a property of the working alias, descending.
func (s *Statement) OrderByDesc(field string) *Statement {
	s.orderBy = fmt.Sprintf("ORDER BY %s.%s DESC", s.alias, field)
	return s
}

// OrderByAsc orders results by a property of the working alias, ascending.
func (s *Statement) OrderByAsc(field string) *Statement {
	s.orderBy = fmt.Sprintf("ORDER BY %s.%s", s.alias, field)
	return s
}

// Limit caps the number of result rows.
func (s *Statement) Limit(n int) *Statement {
	s.limit = n
	return s
}

// Build assembles the Cypher text and its parameter map.
func (s *Statement) Build() (string, map[string]any) {
	parts := []string{s.match + strings.Join(s.traversals, "")}

	if len(s.conditions) > 0 {
		parts = append(parts, "WHERE "+strings.Join(s.conditions, " AND "))
	}

	if s.returns != "" {
		parts = append(parts, s.returns)
	} else {
		parts = append(parts, BuildReturn(s.alias, nil))
	}

	if s.orderBy != "" {
		parts = append(parts, s.orderBy)
	}
	if s.limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", s.limit))
	}

	params := s.params
	if len(params) == 0 {
		params = nil
	}
	return strings.Join(parts, " "), params
}

// buildCondition constructs a single WHERE condition for a predicate.
func buildCondition(pred Predicate, alias, paramName string) string {
	fieldRef := fmt.Sprintf("%s.%s", alias, pred.Field)

	switch pred.Op {
	case Eq:
		return fmt.Sprintf("%s = $%s", fieldRef, paramName)
	case Neq:
		return fmt.Sprintf("%s <> $%s", fieldRef, paramName)
	case Lt:
		return fmt.Sprintf("%s < $%s", fieldRef, paramName)
	case Lte:
		return fmt.Sprintf("%s <= $%s", fieldRef, paramName)
	case Gt:
		return fmt.Sprintf("%s > $%s", fieldRef, paramName)
	case Gte:
		return fmt.Sprintf("%s >= $%s", fieldRef, paramName)
	case Contains:
		return fmt.Sprintf("%s CONTAINS $%s", fieldRef, paramName)
	case ContainsLower:
		return fmt.Sprintf("toLower(%s) CONTAINS $%s", fieldRef, paramName)
	case StartsWith:
		return fmt.Sprintf("%s STARTS WITH $%s", fieldRef, paramName)
	case EndsWith:
		return fmt.Sprintf("%s ENDS WITH $%s", fieldRef, paramName)
	case In:
		return fmt.Sprintf("%s IN $%s", fieldRef, paramName)
	case IsNull:
		return fmt.Sprintf("%s IS NULL", fieldRef)
	case IsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", fieldRef)
	default:
		return fmt.Sprintf("%s = $%s", fieldRef, paramName)
	}
}

// requiresValue returns true if the operation binds a parameter value.
// IsNull and IsNotNull operations do not.
func requiresValue(op Op) bool {
	return op != IsNull && op != IsNotNull
}

// BuildReturn generates a RETURN clause for the alias and optional fields.
// With no fields the entire node is returned.
func BuildReturn(alias string, fields []string) string {
	if len(fields) == 0 {
		return fmt.Sprintf("RETURN %s", alias)
	}

	var fieldRefs []string
	for _, field := range fields {
		fieldRefs = append(fieldRefs, fmt.Sprintf("%s.%s", alias, field))
	}

	return "RETURN " + strings.Join(fieldRefs, ", ")
}
