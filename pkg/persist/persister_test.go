package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersister(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewPersister[testState](dir, NewJSONCodec())

	state := sample()
	require.NoError(t, p.Save("one", &state))
	assert.Equal(t, filepath.Join(dir, "one.json"), p.Path("one"))

	got, err := p.Load("one")
	require.NoError(t, err)
	assert.Equal(t, sample(), *got)

	_, err = p.Load("two")
	require.Error(t, err)
}
