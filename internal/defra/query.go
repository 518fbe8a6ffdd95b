package defra

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// IDPattern matches DefraDB document IDs (bae-<uuid>) and simple identifiers.
var IDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID rejects IDs that are unsafe to interpolate into a query.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty ID")
	}
	if len(id) > 500 {
		return fmt.Errorf("ID too long: %d characters", len(id))
	}
	if !IDPattern.MatchString(id) {
		return fmt.Errorf("invalid ID format: contains unsafe characters")
	}
	return nil
}

// QueryBuilder builds a parameterized collection query. Filter values are
// always passed as GraphQL variables.
type QueryBuilder struct {
	collection string
	filters    []filterDef
	fields     []string
	order      string
	limit      int
	offset     int
}

type filterDef struct {
	field   string
	op      string
	varType string
	value   any
}

// NewQuery starts a query against collection returning only _docID.
func NewQuery(collection string) *QueryBuilder {
	return &QueryBuilder{collection: collection, fields: []string{"_docID"}}
}

// Filter adds an equality filter.
func (q *QueryBuilder) Filter(field string, value any) *QueryBuilder {
	q.filters = append(q.filters, filterDef{field: field, op: "_eq", varType: graphQLType(value), value: value})
	return q
}

// FilterIn matches any of values.
func (q *QueryBuilder) FilterIn(field string, values []string) *QueryBuilder {
	q.filters = append(q.filters, filterDef{field: field, op: "_in", varType: "[String!]", value: values})
	return q
}

// Fields replaces the returned fields.
func (q *QueryBuilder) Fields(fields ...string) *QueryBuilder {
	q.fields = fields
	return q
}

// OrderBy orders by field, direction ASC or DESC.
func (q *QueryBuilder) OrderBy(field, direction string) *QueryBuilder {
	q.order = fmt.Sprintf("{%s: %s}", field, direction)
	return q
}

// Limit caps the number of results.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Offset skips the first n results.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Build returns the query text and its variables.
func (q *QueryBuilder) Build() (string, map[string]any) {
	var (
		defs    []string
		clauses []string
		vars    = make(map[string]any, len(q.filters))
	)
	for i, f := range q.filters {
		name := fmt.Sprintf("v%d", i)
		defs = append(defs, fmt.Sprintf("$%s: %s", name, f.varType))
		clauses = append(clauses, fmt.Sprintf("%s: {%s: $%s}", f.field, f.op, name))
		vars[name] = f.value
	}

	var args []string
	if len(clauses) > 0 {
		args = append(args, fmt.Sprintf("filter: {%s}", strings.Join(clauses, ", ")))
	}
	if q.order != "" {
		args = append(args, "order: "+q.order)
	}
	if q.limit > 0 {
		args = append(args, fmt.Sprintf("limit: %d", q.limit))
	}
	if q.offset > 0 {
		args = append(args, fmt.Sprintf("offset: %d", q.offset))
	}

	var b strings.Builder
	if len(defs) > 0 {
		fmt.Fprintf(&b, "query(%s) ", strings.Join(defs, ", "))
	}
	b.WriteString("{ ")
	b.WriteString(q.collection)
	if len(args) > 0 {
		fmt.Fprintf(&b, "(%s)", strings.Join(args, ", "))
	}
	fmt.Fprintf(&b, " { %s } }", strings.Join(q.fields, " "))
	return b.String(), vars
}

// Execute runs the query and returns the collection's documents.
func (q *QueryBuilder) Execute(ctx context.Context, client *Client) ([]map[string]any, error) {
	query, vars := q.Build()
	resp, err := client.Execute(ctx, query, vars)
	if err != nil {
		return nil, err
	}
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("query %s: %s", q.collection, msg)
	}
	return resp.Docs(q.collection), nil
}

func graphQLType(v any) string {
	switch v.(type) {
	case int, int32, int64:
		return "Int"
	case float32, float64:
		return "Float"
	case bool:
		return "Boolean"
	default:
		return "String"
	}
}
