package plugin

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func validMetadataJSON(t *testing.T) []byte {
	t.Helper()
	m := Metadata{
		Name:         "demo-plugin",
		Version:      "1.0.0",
		OpnetVersion: ">=1.0.0, <2.0.0",
		Main:         "demo",
		Target:       "node",
		Type:         "indexer-extension",
		Checksum:     "sha256:abc123",
		Author:       "opnet-labs",
		PluginType:   TypeStandalone,
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	return data
}

func TestParseMetadata_Valid(t *testing.T) {
	m, err := ParseMetadata(validMetadataJSON(t))
	require.NoError(t, err)
	require.Equal(t, "demo-plugin", m.Name)
}

func TestParseMetadata_RejectsBadName(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal(validMetadataJSON(t), &m))
	m.Name = "Not_Valid!"
	data, _ := json.Marshal(m)

	_, err := ParseMetadata(data)
	require.Error(t, err)
}

func TestParseMetadata_RejectsBadSemver(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal(validMetadataJSON(t), &m))
	m.Version = "not-a-version"
	data, _ := json.Marshal(m)

	_, err := ParseMetadata(data)
	require.Error(t, err)
}

func TestParseMetadata_RejectsMissingChecksumPrefix(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal(validMetadataJSON(t), &m))
	m.Checksum = "abc123"
	data, _ := json.Marshal(m)

	_, err := ParseMetadata(data)
	require.Error(t, err)
}

func TestParseMetadata_RejectsEmptyAuthor(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal(validMetadataJSON(t), &m))
	m.Author = "  "
	data, _ := json.Marshal(m)

	_, err := ParseMetadata(data)
	require.Error(t, err)
}

func TestMetadata_SatisfiesOpnetVersion(t *testing.T) {
	m, err := ParseMetadata(validMetadataJSON(t))
	require.NoError(t, err)

	ok, err := m.SatisfiesOpnetVersion("1.5.0")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.SatisfiesOpnetVersion("2.5.0")
	require.NoError(t, err)
	require.False(t, ok)
}
