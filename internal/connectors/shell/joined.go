package shell

import (
	"context"
	"encoding/json"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
	"github.com/prequery/prequery-preprocess/internal/logger"
)

// Ensure JoinedHandler implements the interface.
var _ driven.BatchHandler = (*JoinedHandler)(nil)

// JoinedHandler runs the command once for all pending records. The command reads
// a JSON array with the data of every record and must print an array of the same
// length; element i is written to the path of record i.
type JoinedHandler struct {
	*Handler
}

// NewJoinedHandler creates a joined handler running command in root.
func NewJoinedHandler(root string, command []string) *JoinedHandler {
	return &JoinedHandler{Handler: NewHandler(root, command)}
}

// Resolve runs the command for a single record.
func (h *JoinedHandler) Resolve(ctx context.Context, q domain.Query) (domain.Payload, error) {
	results, err := h.ResolveBatch(ctx, []domain.Query{q})
	if err != nil {
		return domain.Payload{}, err
	}
	return results[0].Payload, results[0].Err
}

// ResolveBatch runs the command once with the data of every valid record.
// Records with an invalid path fail on their own and are left out of the input.
func (h *JoinedHandler) ResolveBatch(ctx context.Context, qs []domain.Query) ([]driven.BatchResult, error) {
	results := make([]driven.BatchResult, len(qs))
	paths := make([]string, len(qs))
	targets := make([]string, len(qs))

	var (
		inputs []any
		index  []int
	)
	for i, q := range qs {
		path, target, err := h.target(q)
		if err != nil {
			results[i].Err = err
			continue
		}
		paths[i], targets[i] = path, target
		inputs = append(inputs, q.Params[domain.ParamData])
		index = append(index, i)
	}
	if len(inputs) == 0 {
		return results, nil
	}

	input, err := json.Marshal(inputs)
	if err != nil {
		return nil, domain.InvalidQueryError("encoding data: %v", err)
	}
	logger.Debug("running command with %d joined inputs", len(inputs))

	output, err := h.run(ctx, input)
	if err != nil {
		return nil, err
	}

	var outputs []json.RawMessage
	if err := json.Unmarshal(output, &outputs); err != nil || len(outputs) != len(inputs) {
		return nil, domain.InvalidQueryError("joined command output must be a JSON array of %d values", len(inputs))
	}

	for j, i := range index {
		results[i].Payload, results[i].Err = h.write(paths[i], targets[i], outputs[j])
	}
	return results, nil
}
