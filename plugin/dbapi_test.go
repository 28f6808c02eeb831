package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opnet-chain/opnetd/stores/document"
)

func TestDBAPI_PermittedCollectionRoundTrip(t *testing.T) {
	store := document.NewMemoryStore()
	p := newTestPlugin("plugin-a", "1.0.0")
	p.Metadata.Permissions.Collections = []string{"notes"}

	api := NewDBAPI(p, store)

	require.NoError(t, api.Set(context.Background(), "notes", "k1", []byte("v1")))
	data, err := api.Get(context.Background(), "notes", "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), data)
}

func TestDBAPI_RejectsUnpermittedCollection(t *testing.T) {
	store := document.NewMemoryStore()
	p := newTestPlugin("plugin-a", "1.0.0")
	p.Metadata.Permissions.Collections = []string{"notes"}

	api := NewDBAPI(p, store)

	_, err := api.Get(context.Background(), "secrets", "k1")
	require.Error(t, err)
}
