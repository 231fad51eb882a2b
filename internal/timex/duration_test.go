package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"30s"`), &d))
	assert.Equal(t, 30*time.Second, d.Duration)

	require.NoError(t, json.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, time.Second, d.Duration)

	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestDuration_MarshalJSON(t *testing.T) {
	d := Duration{5 * time.Minute}
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"5m0s"`, string(b))
}
