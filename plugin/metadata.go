package plugin

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/opnet-chain/opnetd/errors"
)

// MaxNameLength bounds a plugin name, per spec.md §4.8's name regex.
const MaxNameLength = 64

var nameRE = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)

// PluginType distinguishes a runnable plugin from a library other
// plugins depend on but which the manager never loads standalone.
type PluginType string

const (
	TypeStandalone PluginType = "standalone"
	TypeLibrary    PluginType = "library"
)

// Permissions is the declared capability set a plugin's metadata grants
// it; every plugin API call checks the relevant bit before proceeding.
type Permissions struct {
	Blockchain  []string `json:"blockchain"`
	Collections []string `json:"collections"`
	Hooks       []string `json:"hooks"`
	Threading   ThreadingLimits `json:"threading"`
}

// ThreadingLimits caps the isolated worker's resource usage.
type ThreadingLimits struct {
	MaxCPUPercent int `json:"max_cpu_percent"`
	MaxMemoryMB   int `json:"max_memory_mb"`
}

// LifecycleHints are optional load-order and reindex hints.
type LifecycleHints struct {
	LoadPriority      int    `json:"load_priority"`
	ReindexFromBlock  uint64 `json:"reindex_from_block,omitempty"`
	ReindexEnabled    bool   `json:"reindex_enabled,omitempty"`
}

// Dependency names another plugin and the semver range this plugin
// requires of it.
type Dependency struct {
	Name         string `json:"name"`
	VersionRange string `json:"version_range"`
}

// HTTPRoute is one path this plugin wants mounted under
// /api/v1/plugins/<id>/<route>, per spec.md §6.
type HTTPRoute struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

// Metadata is a plugin's declared identity and capability manifest, the
// metadata_utf8 span of the file format.
type Metadata struct {
	Name          string         `json:"name"`
	Version       string         `json:"version"`
	OpnetVersion  string         `json:"opnet_version"`
	Main          string         `json:"main"`
	Target        string         `json:"target"`
	Type          string         `json:"type"`
	Checksum      string         `json:"checksum"`
	Author        string         `json:"author"`
	PluginType    PluginType     `json:"pluginType"`
	Permissions   Permissions    `json:"permissions"`
	Lifecycle     *LifecycleHints `json:"lifecycle,omitempty"`
	Dependencies  []Dependency   `json:"dependencies,omitempty"`
	HTTPRoutes    []HTTPRoute    `json:"httpRoutes,omitempty"`
}

// ParseMetadata decodes and validates a metadata_utf8 span per spec.md
// §4.8: name matches the plugin name regex, version/opnet_version are
// valid semver shapes, checksum is sha256-prefixed, and author is
// non-empty.
func ParseMetadata(raw []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.NewMalformedMessageError("plugin metadata: invalid json", err)
	}

	if !nameRE.MatchString(m.Name) {
		return nil, errors.NewValidationError("plugin metadata: name %q does not match ^[a-z0-9-]{1,%d}$", m.Name, MaxNameLength)
	}

	if _, err := semver.NewVersion(m.Version); err != nil {
		return nil, errors.NewValidationError("plugin metadata: version %q is not valid semver", m.Version)
	}

	if _, err := semver.NewConstraint(m.OpnetVersion); err != nil {
		return nil, errors.NewValidationError("plugin metadata: opnet_version %q is not a valid semver range", m.OpnetVersion)
	}

	if !strings.HasPrefix(m.Checksum, "sha256:") {
		return nil, errors.NewValidationError("plugin metadata: checksum must start with sha256:")
	}

	if strings.TrimSpace(m.Author) == "" {
		return nil, errors.NewValidationError("plugin metadata: author must be non-empty")
	}

	if m.PluginType != TypeStandalone && m.PluginType != TypeLibrary {
		return nil, errors.NewValidationError("plugin metadata: pluginType must be standalone or library, got %q", m.PluginType)
	}

	for _, dep := range m.Dependencies {
		if _, err := semver.NewConstraint(dep.VersionRange); err != nil {
			return nil, errors.NewValidationError("plugin metadata: dependency %q has invalid version_range %q", dep.Name, dep.VersionRange)
		}
	}

	return &m, nil
}

// SatisfiesOpnetVersion reports whether nodeVersion falls within m's
// declared opnet_version semver range.
func (m *Metadata) SatisfiesOpnetVersion(nodeVersion string) (bool, error) {
	constraint, err := semver.NewConstraint(m.OpnetVersion)
	if err != nil {
		return false, errors.NewValidationError("plugin metadata: invalid opnet_version range %q", m.OpnetVersion)
	}
	v, err := semver.NewVersion(nodeVersion)
	if err != nil {
		return false, errors.NewValidationError("invalid node version %q", nodeVersion)
	}
	return constraint.Check(v), nil
}
