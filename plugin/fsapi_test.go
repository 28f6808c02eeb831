package plugin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSAPI_WriteAndReadConfig(t *testing.T) {
	base := t.TempDir()
	api := NewFSAPI(base, "plugin-a")

	require.NoError(t, api.WriteConfig("settings.json", []byte(`{"x":1}`)))
	data, err := api.ReadConfig("settings.json")
	require.NoError(t, err)
	require.Equal(t, `{"x":1}`, string(data))
}

func TestFSAPI_RejectsTraversal(t *testing.T) {
	base := t.TempDir()
	api := NewFSAPI(base, "plugin-a")

	_, err := api.ReadConfig("../../etc/passwd")
	require.Error(t, err)
}

func TestFSAPI_RejectsAbsolutePath(t *testing.T) {
	base := t.TempDir()
	api := NewFSAPI(base, "plugin-a")

	_, err := api.ReadConfig("/etc/passwd")
	require.Error(t, err)
}

func TestFSAPI_ConfigAndTempAreIsolatedRoots(t *testing.T) {
	base := t.TempDir()
	api := NewFSAPI(base, "plugin-a")

	require.NoError(t, api.WriteTemp("scratch.dat", []byte("x")))
	_, err := api.ReadConfig("scratch.dat")
	require.Error(t, err)
}
