package plugin

import (
	"context"

	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/stores/document"
)

// DBAPI is a plugin's namespaced key/value surface over the document
// store's generic state facility, per spec.md §4.8: collections are
// namespaced by plugin_id_, and access outside the plugin's permitted
// collection list raises COLLECTION_NOT_PERMITTED. Built on
// document.Store's GetState/SetState rather than a dedicated
// collection API, since the store does not define one and the spec's
// "collections" are logically just namespaced keys.
type DBAPI struct {
	plugin *Plugin
	store  document.Store
}

// NewDBAPI scopes a DBAPI to one plugin's permitted collections.
func NewDBAPI(p *Plugin, store document.Store) *DBAPI {
	return &DBAPI{plugin: p, store: store}
}

func (d *DBAPI) checkCollection(collection string) error {
	if hasPermission(d.plugin.Metadata.Permissions.Collections, collection) {
		return nil
	}
	return errors.NewCollectionNotPermittedError("plugin %s: COLLECTION_NOT_PERMITTED: %s", d.plugin.ID, collection)
}

func (d *DBAPI) namespacedKey(collection, key string) string {
	return d.plugin.ID + "_" + collection + "_" + key
}

// Get reads key from collection.
func (d *DBAPI) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if err := d.checkCollection(collection); err != nil {
		return nil, err
	}
	return d.store.GetState(ctx, d.namespacedKey(collection, key))
}

// Set writes key in collection.
func (d *DBAPI) Set(ctx context.Context, collection, key string, value []byte) error {
	if err := d.checkCollection(collection); err != nil {
		return err
	}
	return d.store.SetState(ctx, d.namespacedKey(collection, key), value)
}
