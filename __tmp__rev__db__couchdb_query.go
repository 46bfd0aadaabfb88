package db

import (
	"context"
	"encoding/json"
	"fmt"
)

// toParams converts a MangoQuery into the partial Mango request object
// CouchDB expects alongside the selector: only fields actually set are
// included, so an otherwise-empty query serializes to an empty object
// rather than a request full of zero values.
func (q MangoQuery) toParams() map[string]interface{} {
	params := make(map[string]interface{})

	if len(q.Fields) > 0 {
		params["fields"] = q.Fields
	}
	if len(q.Sort) > 0 {
		params["sort"] = q.Sort
	}
	if q.Limit > 0 {
		params["limit"] = q.Limit
	}
	if q.Skip > 0 {
		params["skip"] = q.Skip
	}
	if q.UseIndex != "" {
		params["use_index"] = q.UseIndex
	}

	return params
}

// FindTyped runs a Mango query and scans every matching document into T,
// the generic counterpart to GetDocumentsByType for selectors more complex
// than a single @type match.
func FindTyped[T any](c *CouchDBService, query MangoQuery) ([]T, error) {
	ctx := context.Background()

	request := map[string]interface{}{"selector": query.Selector}
	for k, v := range query.toParams() {
		request[k] = v
	}

	rows := c.database.Find(ctx, request)
	defer rows.Close()

	var docs []T
	for rows.Next() {
		var doc T
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return docs, nil
}

// queryCondition is a single field selector fragment, e.g. {"status": "running"}
// or {"count": {"$gt": 10}}.
type queryCondition map[string]interface{}

// QueryBuilder assembles a MangoQuery selector from a fluent chain of
// conditions, the way ad hoc administrative queries get built without
// hand-writing nested selector maps.
//
// A single condition is used as-is. Multiple conditions are combined under
// "$and" by default, or under "$or" once Or() has been called.
type QueryBuilder struct {
	conditions []queryCondition
	logicalOp  string
	fields     []string
	sort       []map[string]string
	limit      int
	skip       int
	useIndex   string
}

// NewQueryBuilder starts an empty query.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// Where adds a field condition. Supported operators: eq, gt, gte, lt, lte,
// ne, regex, in, exists.
func (b *QueryBuilder) Where(field, operator string, value interface{}) *QueryBuilder {
	var cond queryCondition
	switch operator {
	case "eq":
		cond = queryCondition{field: value}
	case "gt":
		cond = queryCondition{field: map[string]interface{}{"$gt": value}}
	case "gte":
		cond = queryCondition{field: map[string]interface{}{"$gte": value}}
	case "lt":
		cond = queryCondition{field: map[string]interface{}{"$lt": value}}
	case "lte":
		cond = queryCondition{field: map[string]interface{}{"$lte": value}}
	case "ne":
		cond = queryCondition{field: map[string]interface{}{"$ne": value}}
	case "regex":
		cond = queryCondition{field: map[string]interface{}{"$regex": value}}
	case "in":
		cond = queryCondition{field: map[string]interface{}{"$in": value}}
	case "exists":
		cond = queryCondition{field: map[string]interface{}{"$exists": value}}
	default:
		cond = queryCondition{field: value}
	}
	b.conditions = append(b.conditions, cond)
	return b
}

// And combines subsequent conditions under "$and" (the default with two or
// more Where calls, so this is mostly for readability).
func (b *QueryBuilder) And() *QueryBuilder {
	b.logicalOp = "$and"
	return b
}

// Or combines subsequent conditions under "$or" instead of the default "$and".
func (b *QueryBuilder) Or() *QueryBuilder {
	b.logicalOp = "$or"
	return b
}

// Select restricts the returned fields.
func (b *QueryBuilder) Select(fields ...string) *QueryBuilder {
	b.fields = fields
	return b
}

// Sort appends a sort specification.
func (b *QueryBuilder) Sort(field, direction string) *QueryBuilder {
	b.sort = append(b.sort, map[string]string{field: direction})
	return b
}

// Limit caps the result count.
func (b *QueryBuilder) Limit(n int) *QueryBuilder {
	b.limit = n
	return b
}

// Skip sets the pagination offset.
func (b *QueryBuilder) Skip(n int) *QueryBuilder {
	b.skip = n
	return b
}

// UseIndex hints which index CouchDB should use to satisfy the query.
func (b *QueryBuilder) UseIndex(name string) *QueryBuilder {
	b.useIndex = name
	return b
}

// Build assembles the accumulated conditions into a MangoQuery.
func (b *QueryBuilder) Build() MangoQuery {
	selector := map[string]interface{}{}

	switch len(b.conditions) {
	case 0:
		// no conditions, empty selector
	case 1:
		for k, v := range b.conditions[0] {
			selector[k] = v
		}
	default:
		op := b.logicalOp
		if op == "" {
			op = "$and"
		}
		conds := make([]map[string]interface{}, len(b.conditions))
		for i, c := range b.conditions {
			conds[i] = map[string]interface{}(c)
		}
		selector[op] = conds
	}

	return MangoQuery{
		Selector: selector,
		Fields:   b.fields,
		Sort:     b.sort,
		Limit:    b.limit,
		Skip:     b.skip,
		UseIndex: b.useIndex,
	}
}

// RelationshipGraph is the result of a Traverse call: every document
// visited, keyed by ID, plus the edges followed to reach them.
type RelationshipGraph struct {
	Nodes map[string]json.RawMessage `json:"nodes"`
	Edges []RelationshipEdge         `json:"edges"`
}

// RelationshipEdge records a single hop made during traversal.
type RelationshipEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// Traverse walks document relationships breadth-first from opts.StartID,
// following opts.RelationField forward (doc -> referenced doc) or reverse
// (doc -> documents that reference it) up to opts.Depth hops.
func (c *CouchDBService) Traverse(ctx context.Context, opts TraversalOptions) (*RelationshipGraph, error) {
	graph := &RelationshipGraph{Nodes: make(map[string]json.RawMessage)}
	visited := map[string]bool{opts.StartID: true}
	frontier := []string{opts.StartID}

	if err := c.visitNode(ctx, opts.StartID, graph); err != nil {
		return nil, err
	}

	for depth := 0; depth < opts.Depth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := c.relatedIDs(ctx, id, opts)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				edge := RelationshipEdge{From: id, To: n.id, Type: opts.RelationField}
				if opts.Direction == "reverse" {
					edge = RelationshipEdge{From: n.id, To: id, Type: opts.RelationField}
				}
				graph.Edges = append(graph.Edges, edge)

				if visited[n.id] {
					continue
				}
				visited[n.id] = true
				graph.Nodes[n.id] = n.body
				next = append(next, n.id)
			}
		}
		frontier = next
	}

	return graph, nil
}

func (c *CouchDBService) visitNode(ctx context.Context, id string, graph *RelationshipGraph) error {
	row := c.database.Get(ctx, id)
	if row.Err() != nil {
		return fmt.Errorf("get document %s: %w", id, row.Err())
	}
	var raw json.RawMessage
	if err := row.ScanDoc(&raw); err != nil {
		return fmt.Errorf("scan document %s: %w", id, err)
	}
	graph.Nodes[id] = raw
	return nil
}

type relatedDoc struct {
	id   string
	body json.RawMessage
}

// relatedIDs finds the documents related to id through opts.RelationField,
// in the direction opts.Direction requests.
func (c *CouchDBService) relatedIDs(ctx context.Context, id string, opts TraversalOptions) ([]relatedDoc, error) {
	if opts.Direction == "reverse" {
		selector := map[string]interface{}{opts.RelationField: id}
		for k, v := range opts.Filter {
			selector[k] = v
		}

		rows := c.database.Find(ctx, map[string]interface{}{"selector": selector})
		defer rows.Close()

		var found []relatedDoc
		for rows.Next() {
			var raw json.RawMessage
			if err := rows.ScanDoc(&raw); err != nil {
				return nil, fmt.Errorf("scan related document: %w", err)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(raw, &body); err != nil {
				return nil, fmt.Errorf("unmarshal related document: %w", err)
			}
			refID, _ := body["_id"].(string)
			if refID == "" {
				continue
			}
			found = append(found, relatedDoc{id: refID, body: raw})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating related documents: %w", err)
		}
		return found, nil
	}

	row := c.database.Get(ctx, id)
	if row.Err() != nil {
		return nil, fmt.Errorf("get document %s: %w", id, row.Err())
	}
	var body map[string]interface{}
	if err := row.ScanDoc(&body); err != nil {
		return nil, fmt.Errorf("scan document %s: %w", id, err)
	}

	refID, ok := body[opts.RelationField].(string)
	if !ok || refID == "" {
		return nil, nil
	}

	target := c.database.Get(ctx, refID)
	if target.Err() != nil {
		return nil, fmt.Errorf("get document %s: %w", refID, target.Err())
	}
	var raw json.RawMessage
	if err := target.ScanDoc(&raw); err != nil {
		return nil, fmt.Errorf("scan document %s: %w", refID, err)
	}

	return []relatedDoc{{id: refID, body: raw}}, nil
}


