package temporal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/converter"
	"durableagent.dev/engine/planner"
	aitools "durableagent.dev/engine/tools"
)

func TestNewAgentDataConverter_RehydratesToolResult(t *testing.T) {
	type result struct {
		Value string `json:"value"`
	}

	toolName := aitools.Ident("test.tool")
	specFn := func(id aitools.Ident) (*aitools.ToolSpec, bool) {
		if id != toolName {
			return nil, false
		}
		return &aitools.ToolSpec{
			Name: toolName,
			Result: aitools.TypeSpec{
				Codec: aitools.JSONCodec[any]{
					ToJSON: func(v any) ([]byte, error) {
						return json.Marshal(v)
					},
					FromJSON: func(data []byte) (any, error) {
						var r result
						if err := json.Unmarshal(data, &r); err != nil {
							return nil, err
						}
						return r, nil
					},
				},
			},
		}, true
	}

	base := converter.NewJSONPayloadConverter()
	payload, err := base.ToPayload(&planner.ToolResult{
		Name:   toolName,
		Result: result{Value: "ok"},
	})
	require.NoError(t, err)

	dc := NewAgentDataConverter(specFn)
	var decoded *planner.ToolResult
	require.NoError(t, dc.FromPayload(payload, &decoded))
	require.NotNil(t, decoded)

	got := decoded.Result
	r, ok := got.(result)
	require.True(t, ok, "expected decoded tool result to be concrete type, got %T", got)
	assert.Equal(t, "ok", r.Value)
}
