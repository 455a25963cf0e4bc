package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexInsertGetRemove(t *testing.T) {
	ix := newIndex()
	require.False(t, ix.contains("k"))

	ix.insert("k", CommandPos{Gen: 1, Offset: 0, Length: 10})
	require.True(t, ix.contains("k"))

	pos, ok := ix.get("k")
	require.True(t, ok)
	require.Equal(t, uint64(1), pos.Gen)

	removed, ok := ix.remove("k")
	require.True(t, ok)
	require.Equal(t, int64(10), removed.Length)
	require.False(t, ix.contains("k"))

	_, ok = ix.remove("k")
	require.False(t, ok)
}

func TestIndexEachMutRewritesPositions(t *testing.T) {
	ix := newIndex()
	ix.insert("a", CommandPos{Gen: 1, Offset: 0, Length: 5})
	ix.insert("b", CommandPos{Gen: 1, Offset: 5, Length: 5})

	err := ix.eachMut(func(key string, pos *CommandPos) error {
		pos.Gen = 2
		pos.Offset += 100
		return nil
	})
	require.NoError(t, err)

	for _, key := range []string{"a", "b"} {
		pos, ok := ix.get(key)
		require.True(t, ok)
		require.Equal(t, uint64(2), pos.Gen)
		require.GreaterOrEqual(t, pos.Offset, int64(100))
	}
}
