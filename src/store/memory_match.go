package store

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The evaluator below covers the query and update subset the repositories
// issue, with the same semantics as the server: dotted paths descend into
// arrays of documents and an array field matches a scalar when any element does.

func toDocument(v any) (bson.M, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return normalizeDocument(doc), nil
}

// toValue converts an operand the way the driver would before sending it.
func toValue(v any) (any, error) {
	doc, err := toDocument(bson.M{"v": v})
	if err != nil {
		return nil, err
	}
	return doc["v"], nil
}

func normalizeDocument(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = normalize(v)
	}
	return out
}

// normalize folds the equivalent decoded shapes into one representation so
// values can be compared with reflect.DeepEqual.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeDocument(t)
	case map[string]any:
		return normalizeDocument(bson.M(t))
	case bson.D:
		m := bson.M{}
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.A:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []any:
		return normalize(bson.A(t))
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case time.Time:
		return primitive.NewDateTimeFromTime(t)
	case nil:
		return nil
	}
	// typed slices such as []bson.M or []string in filters
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make(bson.A, rv.Len())
		for i := 0; i < rv.Len(); i += 1 {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func asDocument(v any) (bson.M, bool) {
	switch t := normalize(v).(type) {
	case bson.M:
		return t, true
	}
	return nil, false
}

func asArray(v any) (bson.A, bool) {
	switch t := normalize(v).(type) {
	case bson.A:
		return t, true
	}
	return nil, false
}

func isOperatorDocument(v any) bool {
	doc, ok := asDocument(v)
	if !ok || len(doc) == 0 {
		return false
	}
	for k := range doc {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// matches expects a filter already encoded by toDocument, so operands of
// named types compare equal to the stored values they encode to.
func matches(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		switch key {
		case "$and", "$or":
			clauses, ok := asArray(cond)
			if !ok {
				return false, fmt.Errorf("%s requires an array", key)
			}
			matched := false
			for _, clause := range clauses {
				sub, ok := asDocument(clause)
				if !ok {
					return false, fmt.Errorf("%s clause must be a document", key)
				}
				m, err := matches(doc, sub)
				if err != nil {
					return false, err
				}
				if key == "$and" && !m {
					return false, nil
				}
				matched = matched || m
			}
			if key == "$or" && !matched {
				return false, nil
			}
		default:
			m, err := matchCondition(lookup(doc, strings.Split(key, ".")), cond)
			if err != nil || !m {
				return false, err
			}
		}
	}
	return true, nil
}

// lookup resolves a dotted path, fanning out over arrays of documents.
func lookup(v any, path []string) []any {
	if len(path) == 0 {
		return []any{v}
	}
	switch t := v.(type) {
	case bson.M:
		child, ok := t[path[0]]
		if !ok {
			return nil
		}
		return lookup(child, path[1:])
	case bson.A:
		var out []any
		for _, e := range t {
			if _, ok := e.(bson.M); ok {
				out = append(out, lookup(e, path)...)
			}
		}
		return out
	}
	return nil
}

func matchCondition(candidates []any, cond any) (bool, error) {
	if !isOperatorDocument(cond) {
		return equalsAny(candidates, normalize(cond)), nil
	}
	ops, _ := asDocument(cond)
	for op, operand := range ops {
		var m bool
		switch op {
		case "$eq":
			m = equalsAny(candidates, normalize(operand))
		case "$ne":
			m = !equalsAny(candidates, normalize(operand))
		case "$in", "$nin":
			list, ok := asArray(operand)
			if !ok {
				return false, fmt.Errorf("%s requires an array", op)
			}
			for _, want := range list {
				if equalsAny(candidates, want) {
					m = true
					break
				}
			}
			if op == "$nin" {
				m = !m
			}
		case "$exists":
			want, _ := operand.(bool)
			m = (len(candidates) > 0) == want
		case "$elemMatch":
			sub, ok := asDocument(operand)
			if !ok {
				return false, fmt.Errorf("$elemMatch requires a document")
			}
			for _, c := range candidates {
				arr, ok := c.(bson.A)
				if !ok {
					continue
				}
				for _, e := range arr {
					elem, ok := e.(bson.M)
					if !ok {
						continue
					}
					em, err := matches(elem, sub)
					if err != nil {
						return false, err
					}
					if em {
						m = true
						break
					}
				}
				if m {
					break
				}
			}
		case "$not":
			inner, err := matchCondition(candidates, operand)
			if err != nil {
				return false, err
			}
			m = !inner
		case "$gt", "$gte", "$lt", "$lte":
			m = compareAny(candidates, op, normalize(operand))
		default:
			return false, fmt.Errorf("unsupported query operator %s", op)
		}
		if !m {
			return false, nil
		}
	}
	return true, nil
}

func equalsAny(candidates []any, want any) bool {
	if want == nil && len(candidates) == 0 {
		return true
	}
	for _, c := range candidates {
		if reflect.DeepEqual(c, want) {
			return true
		}
		if arr, ok := c.(bson.A); ok {
			for _, e := range arr {
				if reflect.DeepEqual(e, want) {
					return true
				}
			}
		}
	}
	return false
}

func compareAny(candidates []any, op string, want any) bool {
	for _, c := range candidates {
		cmp, ok := compare(c, want)
		if !ok {
			continue
		}
		switch {
		case op == "$gt" && cmp > 0,
			op == "$gte" && cmp >= 0,
			op == "$lt" && cmp < 0,
			op == "$lte" && cmp <= 0:
			return true
		}
	}
	return false
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		return cmpOrdered(x, y), true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case primitive.DateTime:
		y, ok := b.(primitive.DateTime)
		if !ok {
			return 0, false
		}
		return cmpOrdered(x, y), true
	}
	return 0, false
}

func cmpOrdered[T float64 | primitive.DateTime](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// applyUpdate mutates doc in place.
func applyUpdate(doc bson.M, update bson.M) error {
	for op, fields := range update {
		spec, ok := asDocument(fields)
		if !ok {
			return fmt.Errorf("%s requires a document", op)
		}
		for path, operand := range spec {
			if path == "_id" {
				return fmt.Errorf("field _id is immutable")
			}
			value, err := toValue(operand)
			if err != nil {
				return err
			}
			switch op {
			case "$set":
				setPath(doc, path, value)
			case "$unset":
				unsetPath(doc, path)
			case "$inc":
				delta, ok := value.(float64)
				if !ok {
					return fmt.Errorf("$inc on %s requires a number", path)
				}
				current, exists := getPath(doc, path)
				n, ok := current.(float64)
				if exists && !ok {
					return fmt.Errorf("$inc on non-numeric field %s", path)
				}
				setPath(doc, path, n+delta)
			case "$push", "$addToSet":
				items := bson.A{value}
				if each, ok := asDocument(value); ok {
					if list, ok := each["$each"]; ok {
						items, ok = asArray(list)
						if !ok {
							return fmt.Errorf("$each requires an array")
						}
					}
				}
				current, exists := getPath(doc, path)
				arr, ok := current.(bson.A)
				if exists && !ok {
					return fmt.Errorf("field %s must be an array", path)
				}
				for _, item := range items {
					if op == "$addToSet" && equalsAny([]any{arr}, item) {
						continue
					}
					arr = append(arr, item)
				}
				if arr == nil {
					arr = bson.A{}
				}
				setPath(doc, path, arr)
			case "$pull":
				current, exists := getPath(doc, path)
				if !exists {
					continue
				}
				arr, ok := current.(bson.A)
				if !ok {
					return fmt.Errorf("field %s must be an array", path)
				}
				kept := bson.A{}
				for _, e := range arr {
					remove, err := pullMatches(e, value)
					if err != nil {
						return err
					}
					if !remove {
						kept = append(kept, e)
					}
				}
				setPath(doc, path, kept)
			default:
				return fmt.Errorf("unsupported update operator %s", op)
			}
		}
	}
	return nil
}

func pullMatches(elem any, cond any) (bool, error) {
	if sub, ok := cond.(bson.M); ok && !isOperatorDocument(sub) {
		if doc, ok := elem.(bson.M); ok {
			return matches(doc, sub)
		}
		return false, nil
	}
	return matchCondition([]any{elem}, cond)
}

func getPath(doc bson.M, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(bson.M)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc bson.M, path string, value any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(bson.M)
		if !ok {
			next = bson.M{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func unsetPath(doc bson.M, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(bson.M)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}
