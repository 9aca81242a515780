package gate

import (
	"encoding/json"
	"fmt"
	"sort"
)

// canonicalRequestBytes is the single canonicalization routine shared by
// signing and verification. Parameter maps are flattened into sorted
// key/value arrays (recursively, so nested maps are stable too), scopes are
// sorted, and the scalar fields are emitted in a fixed order. Both sides of
// the signature scheme must call this exact function; a second copy that
// drifted would make every signature falsely fail.
func canonicalRequestBytes(r ActionRequest) ([]byte, error) {
	scopes := append([]string(nil), normalizeScopes(r.Scopes)...)
	sort.Strings(scopes)

	params, err := canonicalizeValue(r.Params)
	if err != nil {
		return nil, err
	}

	payload := []any{
		"id", r.ID,
		"tool", r.Tool,
		"risk_level", string(r.RiskLevel),
		"requester", r.Requester,
		"context_id", r.ContextID,
		"scopes", scopes,
		"params", params,
	}
	return json.Marshal(payload)
}

// canonicalizeValue rewrites maps as sorted key/value arrays so that
// json.Marshal output is order-stable regardless of map iteration order.
func canonicalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			out = append(out, k)
			vv, err := canonicalizeValue(x[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vv)
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(x))
		for _, vv := range x {
			cv, err := canonicalizeValue(vv)
			if err != nil {
				return nil, err
			}
			out = append(out, cv)
		}
		return out, nil
	case string, float64, bool, nil, int, int64, json.Number:
		return x, nil
	default:
		// Best-effort for JSON-ish values.
		b, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("cannot canonicalize value of type %T", v)
		}
		var y any
		if err := json.Unmarshal(b, &y); err != nil {
			return nil, fmt.Errorf("cannot canonicalize value of type %T", v)
		}
		return canonicalizeValue(y)
	}
}
