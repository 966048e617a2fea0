package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
)

// Validator is implemented by records that check themselves before
// persistence.
type Validator interface {
	Validate() error
}

// Encode converts a typed record into document data via its JSON tags. The
// record must encode to a JSON object.
func Encode(v any) (map[string]any, error) {
	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return nil, err
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, invalidf("encode: %v", err)
	}
	return decodeObject(raw)
}

// Decode fills a typed record from document data.
func Decode(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	return nil
}

// normalize deep-copies data into its canonical JSON shape and rejects values
// JSON cannot represent.
func normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, invalidf("document data: %v", err)
	}
	return decodeObject(raw)
}

func decodeObject(raw []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, invalidf("document data must be an object: %v", err)
	}
	if out == nil {
		return nil, invalidf("document data must be an object")
	}
	return out, nil
}

// compareValues orders JSON values: missing/null < bool < number < string <
// anything else (compared by encoding).
func compareValues(a, b any) int {
	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	}
	if ra == 2 {
		af, bf := toFloat(a), toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return bytes.Compare(ja, jb)
}

func valueRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, float32, int, int32, int64, json.Number:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

// sortDocuments orders docs by q in place. The sort is stable, so callers
// control tie order through the order docs arrive in.
func sortDocuments(docs []Document, q Query) []Document {
	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			c := compareValues(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy])
			if q.Direction == Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

func sortByID(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}

// fingerprint hashes a snapshot so pollers can skip unchanged results.
func fingerprint(docs []Document) uint64 {
	h := fnv.New64a()
	enc := json.NewEncoder(h)
	for _, doc := range docs {
		_ = enc.Encode(doc)
	}
	return h.Sum64()
}

func cloneDocuments(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, doc := range docs {
		out[i] = Document{ID: doc.ID, Data: cloneMap(doc.Data)}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
