package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeValue(t *testing.T) {
	type prState struct {
		Number int
		State  string
		Checks []string
	}

	in := prState{Number: 42, State: "open", Checks: []string{"ci", "lint"}}
	encoded, err := EncodeValue(in)
	require.NoError(t, err)
	// Opaque string form must be safe for both backends.
	assert.NotContains(t, encoded, "\x1f")
	assert.NotContains(t, encoded, "\n")

	out, err := DecodeValue[prState](encoded)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeValueRejectsGarbage(t *testing.T) {
	_, err := DecodeValue[int]("not base64 at all \x00")
	assert.Error(t, err)
}

func TestEntryAge(t *testing.T) {
	now := time.Unix(1000, 0)
	e := Entry{Value: "v", Timestamp: 700}
	assert.Equal(t, 300*time.Second, e.Age(now))
}

func TestFreshnessString(t *testing.T) {
	assert.Equal(t, "fresh", Fresh.String())
	assert.Equal(t, "stale", Stale.String())
}

func TestStoreKey(t *testing.T) {
	assert.Equal(t, "git_root:/home/u/proj", storeKey("git_root", "/home/u/proj"))
}
