package typst

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

// ParseRecords converts query output into queries, in declaration order.
//
// The output must be a JSON array of objects. A record's optional "kind" key
// selects its query kind; records without one get defaultKind. Two records of
// the same kind writing the same path with different parameters are rejected.
func ParseRecords(data []byte, defaultKind string) ([]domain.Query, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &domain.ParseError{Index: -1, Msg: "empty query output"}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &domain.ParseError{Index: -1, Msg: "expected a JSON array", Err: err}
	}

	type owner struct {
		index int
		id    string
	}
	paths := make(map[string]owner)

	queries := make([]domain.Query, 0, len(raw))
	for i, item := range raw {
		var params map[string]any
		if err := json.Unmarshal(item, &params); err != nil || params == nil {
			return nil, &domain.ParseError{Index: i, Msg: "expected a JSON object", Err: err}
		}

		kind := defaultKind
		if v, ok := params[domain.ParamKind]; ok {
			s, ok := v.(string)
			if !ok || s == "" {
				return nil, &domain.ParseError{Index: i, Msg: fmt.Sprintf("`kind` must be a non-empty string, got %v", v)}
			}
			kind = s
			delete(params, domain.ParamKind)
		}

		q, err := domain.NewQuery(kind, params)
		if err != nil {
			return nil, &domain.ParseError{Index: i, Msg: "unencodable record", Err: err}
		}

		if path := q.Path(); path != "" {
			key := kind + "\x00" + path
			if prev, ok := paths[key]; ok && prev.id != q.ID {
				return nil, &domain.ParseError{
					Index: i,
					Msg:   fmt.Sprintf("path %q was already declared with different parameters by record %d", path, prev.index),
				}
			} else if !ok {
				paths[key] = owner{index: i, id: q.ID}
			}
		}
		queries = append(queries, q)
	}
	return queries, nil
}
