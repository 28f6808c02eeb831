package plugin

import (
	"testing"

	"github.com/cloudflare/circl/sign/schemes"
	"github.com/stretchr/testify/require"
)

func signedFixture(t *testing.T, metadata, bytecode, proto []byte) []byte {
	t.Helper()

	scheme := schemes.ByName("ML-DSA-44")
	require.NotNil(t, scheme)

	pk, sk, err := scheme.GenerateKey()
	require.NoError(t, err)

	pkBytes, err := pk.MarshalBinary()
	require.NoError(t, err)

	signed := signedPayload(metadata, bytecode, proto)
	sig := scheme.Sign(sk, signed, nil)

	return EncodePluginFile(2, pkBytes, sig, metadata, bytecode, proto)
}

func TestParsePluginFile_ValidRoundTrip(t *testing.T) {
	data := signedFixture(t, []byte(`{"name":"demo"}`), []byte{0x01, 0x02}, nil)

	pf, err := ParsePluginFile(data)
	require.NoError(t, err)
	require.Equal(t, byte(2), pf.MLDSALevel)
	require.Equal(t, []byte(`{"name":"demo"}`), pf.MetadataJSON)
	require.Equal(t, []byte{0x01, 0x02}, pf.Bytecode)
}

func TestParsePluginFile_RejectsBadMagic(t *testing.T) {
	data := signedFixture(t, []byte("{}"), nil, nil)
	data[0] = 'X'

	_, err := ParsePluginFile(data)
	require.Error(t, err)
}

func TestParsePluginFile_RejectsTamperedBytecode(t *testing.T) {
	data := signedFixture(t, []byte("{}"), []byte{0x01}, nil)

	// Flip the single bytecode byte without re-signing; it sits before
	// the 4-byte proto_schema length prefix and the 32-byte checksum.
	tamperIdx := len(data) - 32 - 4 - 1
	data[tamperIdx] ^= 0xFF

	_, err := ParsePluginFile(data)
	require.Error(t, err)
}
