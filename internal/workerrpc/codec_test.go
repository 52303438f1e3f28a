package workerrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-run/brane/internal/ir"
)

func TestJSONCodec_Name(t *testing.T) {
	assert.Equal(t, "brane-json", jsonCodec{}.Name())
}

func TestJSONCodec_RoundTripsExecuteRequest(t *testing.T) {
	fv, err := ir.ToFullValue(ir.Int(42))
	require.NoError(t, err)

	req := ExecuteRequest{
		Package:        "acme/etl",
		PackageVersion: "1.0.0",
		TaskName:       "transform",
		Input:          map[string]ir.AccessKind{"weather": {Path: "/data/weather"}},
		Result:         "out",
		Args:           map[string]ir.FullValue{"n": fv},
	}

	c := jsonCodec{}
	b, err := c.Marshal(req)
	require.NoError(t, err)

	var got ExecuteRequest
	require.NoError(t, c.Unmarshal(b, &got))
	assert.Equal(t, req.Package, got.Package)
	assert.Equal(t, req.TaskName, got.TaskName)
	assert.Equal(t, req.Input["weather"].Path, got.Input["weather"].Path)

	v, err := got.Args["n"].ToValue()
	require.NoError(t, err)
	assert.Equal(t, ir.Int(42), v)
}

func TestJSONCodec_UnmarshalError(t *testing.T) {
	c := jsonCodec{}
	var out ExecuteRequest
	err := c.Unmarshal([]byte("not json"), &out)
	assert.Error(t, err)
}

func TestServiceDesc_WiresExpectedMethods(t *testing.T) {
	names := map[string]bool{}
	for _, m := range ServiceDesc.Methods {
		names[m.MethodName] = true
	}
	assert.True(t, names["Preprocess"])
	assert.True(t, names["Commit"])
	require.Len(t, ServiceDesc.Streams, 1)
	assert.Equal(t, "Execute", ServiceDesc.Streams[0].StreamName)
}
