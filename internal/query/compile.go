// Package query turns listing requests into MongoDB aggregation pipelines and
// executes them with facet-based pagination.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// Compiler translates WhereInput and SortInput terms into match and sort
// documents. The zero value accepts every field name that does not start
// with "$".
type Compiler struct {
	fields map[string]bool
}

// NewCompiler returns a Compiler restricted to the given field paths. With no
// fields every path is allowed.
func NewCompiler(fields ...string) *Compiler {
	c := &Compiler{}
	if len(fields) > 0 {
		c.fields = make(map[string]bool, len(fields))
		for _, f := range fields {
			c.fields[f] = true
		}
	}
	return c
}

func (c *Compiler) allowed(key string) bool {
	if key == "" || strings.HasPrefix(key, "$") {
		return false
	}
	return c == nil || c.fields == nil || c.fields[key]
}

// Where compiles one filter term. It reports false when the term is dropped
// because its operator is unsupported or its key is not allowed.
func (c *Compiler) Where(w domain.WhereInput) (bson.E, bool) {
	if !c.allowed(w.Key) {
		return bson.E{}, false
	}

	var value any
	if w.Value != nil {
		value = parseValue(*w.Value)
	}

	var cond bson.D
	switch w.Operator {
	case domain.OpEquals:
		cond = bson.D{{Key: "$eq", Value: value}}
	case domain.OpGreaterThan:
		cond = bson.D{{Key: "$gt", Value: value}}
	case domain.OpGreaterThanEqual:
		cond = bson.D{{Key: "$gte", Value: value}}
	case domain.OpLessThan:
		cond = bson.D{{Key: "$lt", Value: value}}
	case domain.OpLessThanEqual:
		cond = bson.D{{Key: "$lte", Value: value}}
	case domain.OpIn:
		values := make(bson.A, 0, len(w.Values))
		for _, v := range w.Values {
			values = append(values, coerceNumber(v))
		}
		cond = bson.D{{Key: "$in", Value: values}}
	case domain.OpRegexMatch:
		cond = bson.D{{Key: "$regex", Value: stringify(value)}}
	default:
		return bson.E{}, false
	}
	return bson.E{Key: w.Key, Value: cond}, true
}

// Match compiles the conjunctive and disjunctive groups of args. Groups whose
// terms were all dropped are omitted, so a request without usable terms
// yields an empty document.
func (c *Compiler) Match(args domain.QueryArgs) bson.D {
	var match bson.D
	if group := c.group(args.And); len(group) > 0 {
		match = append(match, bson.E{Key: "$and", Value: group})
	}
	if group := c.group(args.Or); len(group) > 0 {
		match = append(match, bson.E{Key: "$or", Value: group})
	}
	return match
}

func (c *Compiler) group(terms []domain.WhereInput) bson.A {
	var out bson.A
	for _, w := range terms {
		if e, ok := c.Where(w); ok {
			out = append(out, bson.D{e})
		}
	}
	return out
}

// Sort compiles an ordered sort. ASC maps to 1 and any other direction to -1.
// A field named twice keeps its first position and its last direction.
func (c *Compiler) Sort(sort []domain.SortInput) bson.D {
	var out bson.D
	index := make(map[string]int, len(sort))
	for _, s := range sort {
		if !c.allowed(s.By) {
			continue
		}
		dir := -1
		if s.Type == domain.SortAsc {
			dir = 1
		}
		if i, ok := index[s.By]; ok {
			out[i].Value = dir
			continue
		}
		index[s.By] = len(out)
		out = append(out, bson.E{Key: s.By, Value: dir})
	}
	return out
}

// parseValue lowercases raw and decodes it as a JSON scalar, so "30" becomes a
// number and "TRUE" a boolean. Anything that is not a JSON scalar is returned
// unchanged.
func parseValue(raw string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.ToLower(raw))))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	switch t := v.(type) {
	case json.Number:
		if n, ok := number(t.String()); ok {
			return n
		}
		return raw
	case string, bool, nil:
		return t
	default:
		return raw
	}
}

// coerceNumber returns s as a number when it parses as a finite one.
func coerceNumber(s string) any {
	if n, ok := number(strings.TrimSpace(s)); ok {
		return n
	}
	return s
}

func number(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), true
	}
	return f, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
