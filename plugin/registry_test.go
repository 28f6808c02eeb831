package plugin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPlugin(id, version string, deps ...Dependency) *Plugin {
	return &Plugin{
		ID: id,
		Metadata: &Metadata{
			Name:         id,
			Version:      version,
			Dependencies: deps,
		},
		Lifecycle: NewLifecycle(id),
	}
}

func TestRegistry_ResolveDependencies_TopologicalOrder(t *testing.T) {
	r := NewRegistry()
	r.Add(newTestPlugin("base", "1.0.0"))
	r.Add(newTestPlugin("mid", "1.0.0", Dependency{Name: "base", VersionRange: ">=1.0.0"}))
	r.Add(newTestPlugin("top", "1.0.0", Dependency{Name: "mid", VersionRange: ">=1.0.0"}))

	order, err := r.ResolveDependencies()
	require.NoError(t, err)
	require.Len(t, order, 3)

	indexOf := func(id string) int {
		for i, p := range order {
			if p.ID == id {
				return i
			}
		}
		return -1
	}
	require.Less(t, indexOf("base"), indexOf("mid"))
	require.Less(t, indexOf("mid"), indexOf("top"))
}

func TestRegistry_ResolveDependencies_RejectsCircular(t *testing.T) {
	r := NewRegistry()
	r.Add(newTestPlugin("a", "1.0.0", Dependency{Name: "b", VersionRange: ">=1.0.0"}))
	r.Add(newTestPlugin("b", "1.0.0", Dependency{Name: "a", VersionRange: ">=1.0.0"}))

	_, err := r.ResolveDependencies()
	require.Error(t, err)
}

func TestRegistry_ResolveDependencies_RejectsMissing(t *testing.T) {
	r := NewRegistry()
	r.Add(newTestPlugin("a", "1.0.0", Dependency{Name: "ghost", VersionRange: ">=1.0.0"}))

	_, err := r.ResolveDependencies()
	require.Error(t, err)
}

func TestRegistry_ResolveDependencies_RejectsVersionMismatch(t *testing.T) {
	r := NewRegistry()
	r.Add(newTestPlugin("base", "1.0.0"))
	r.Add(newTestPlugin("dependent", "1.0.0", Dependency{Name: "base", VersionRange: ">=2.0.0"}))

	_, err := r.ResolveDependencies()
	require.Error(t, err)
}

func TestRegistry_GetUnloadOrder_IsReversed(t *testing.T) {
	r := NewRegistry()
	r.Add(newTestPlugin("base", "1.0.0"))
	r.Add(newTestPlugin("top", "1.0.0", Dependency{Name: "base", VersionRange: ">=1.0.0"}))

	loadOrder, err := r.ResolveDependencies()
	require.NoError(t, err)
	unloadOrder, err := r.GetUnloadOrder()
	require.NoError(t, err)

	require.Equal(t, loadOrder[0].ID, unloadOrder[len(unloadOrder)-1].ID)
	require.Equal(t, loadOrder[len(loadOrder)-1].ID, unloadOrder[0].ID)
}

func TestRegistry_LoadPriorityBreaksTies(t *testing.T) {
	r := NewRegistry()
	low := newTestPlugin("low-priority", "1.0.0")
	low.Metadata.Lifecycle = &LifecycleHints{LoadPriority: 10}
	high := newTestPlugin("high-priority", "1.0.0")
	high.Metadata.Lifecycle = &LifecycleHints{LoadPriority: 1}

	r.Add(low)
	r.Add(high)

	order, err := r.ResolveDependencies()
	require.NoError(t, err)
	require.Equal(t, "high-priority", order[0].ID)
	require.Equal(t, "low-priority", order[1].ID)
}
