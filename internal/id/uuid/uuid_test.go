package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsSortableV7(t *testing.T) {
	t.Parallel()

	gen := New()
	ids := make([]string, 0, 16)
	for range 16 {
		id, err := gen.NewID()
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i, id := range ids {
		parsed, err := goUUID.Parse(id)
		require.NoError(t, err)
		assert.EqualValues(t, 7, parsed.Version())
		if i > 0 {
			assert.Greater(t, id, ids[i-1], "run ids must sort by creation")
		}
	}
}
