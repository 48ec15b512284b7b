package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sidecar struct {
	PageSize int    `json:"page_size"`
	Objects  int64  `json:"objects"`
	Codec    string `json:"codec"`
}

func TestDefault(t *testing.T) {
	assert.Equal(t, "go-json", Default.Name())

	in := sidecar{PageSize: 1 << 20, Objects: 42, Codec: "zstd"}
	b, err := Default.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"page_size":1048576,"objects":42,"codec":"zstd"}`, string(b))

	var out sidecar
	require.NoError(t, Default.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestUnmarshalInvalid(t *testing.T) {
	var out sidecar
	assert.Error(t, Default.Unmarshal([]byte(`{"objects":`), &out))
	assert.Error(t, Default.Unmarshal([]byte(`{"objects":"many"}`), &out))
}
