// Package plugin implements the node's plugin runtime: the on-disk file
// format, metadata validation, dependency resolution, lifecycle state
// machine, isolated worker execution, hook dispatch, the reindex
// protocol, hot reload, and the three permission-gated plugin APIs
// (blockchain, database, filesystem).
package plugin

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/cloudflare/circl/sign/schemes"
	"github.com/opnet-chain/opnetd/errors"
)

// Magic identifies an opnet plugin file. Fixed, 8 bytes.
var Magic = [8]byte{'O', 'P', 'N', 'E', 'T', 'P', 'L', 'G'}

// FormatVersion is the only on-disk layout version this loader accepts.
const FormatVersion uint32 = 1

// mldsaSchemeName maps the file format's mldsa_level byte to the
// corresponding circl signature scheme name. Levels follow NIST's
// ML-DSA parameter sets: 2 -> ML-DSA-44, 3 -> ML-DSA-65, 5 -> ML-DSA-87.
var mldsaSchemeName = map[byte]string{
	2: "ML-DSA-44",
	3: "ML-DSA-65",
	5: "ML-DSA-87",
}

// PluginFile is the parsed, signature-and-checksum-verified contents of
// one <name>.opnet file, per spec.md §4.8's binary layout.
type PluginFile struct {
	MLDSALevel   byte
	PublicKey    []byte
	Signature    []byte
	MetadataJSON []byte
	Bytecode     []byte
	ProtoSchema  []byte
	Checksum     [32]byte
}

// ParsePluginFile decodes and fully verifies a .opnet buffer: magic,
// format version, declared lengths, the ML-DSA signature over
// metadata||bytecode||proto_schema, and the trailing SHA-256 checksum
// over the same span. Any mismatch is a rejection, per spec.md §4.8.
func ParsePluginFile(data []byte) (*PluginFile, error) {
	r := bytes.NewReader(data)

	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != Magic {
		return nil, errors.NewMalformedMessageError("plugin file: bad magic")
	}

	var formatVersion uint32
	if err := binary.Read(r, binary.LittleEndian, &formatVersion); err != nil {
		return nil, errors.NewMalformedMessageError("plugin file: read format_version", err)
	}
	if formatVersion != FormatVersion {
		return nil, errors.NewMalformedMessageError("plugin file: unsupported format_version %d", formatVersion)
	}

	level, err := readByte(r)
	if err != nil {
		return nil, errors.NewMalformedMessageError("plugin file: read mldsa_level", err)
	}
	schemeName, ok := mldsaSchemeName[level]
	if !ok {
		return nil, errors.NewMalformedMessageError("plugin file: unknown mldsa_level %d", level)
	}
	scheme := schemes.ByName(schemeName)
	if scheme == nil {
		return nil, errors.NewMalformedMessageError("plugin file: scheme %s unavailable", schemeName)
	}

	publicKey := make([]byte, scheme.PublicKeySize())
	if _, err := io.ReadFull(r, publicKey); err != nil {
		return nil, errors.NewMalformedMessageError("plugin file: read public_key", err)
	}

	signature := make([]byte, scheme.SignatureSize())
	if _, err := io.ReadFull(r, signature); err != nil {
		return nil, errors.NewMalformedMessageError("plugin file: read signature", err)
	}

	metadata, err := readLengthPrefixed(r)
	if err != nil {
		return nil, errors.NewMalformedMessageError("plugin file: read metadata", err)
	}

	bytecode, err := readLengthPrefixed(r)
	if err != nil {
		return nil, errors.NewMalformedMessageError("plugin file: read bytecode", err)
	}

	protoSchema, err := readLengthPrefixed(r)
	if err != nil {
		return nil, errors.NewMalformedMessageError("plugin file: read proto_schema", err)
	}

	var checksum [32]byte
	if _, err := io.ReadFull(r, checksum[:]); err != nil {
		return nil, errors.NewMalformedMessageError("plugin file: read checksum", err)
	}

	signedSpan := signedPayload(metadata, bytecode, protoSchema)

	pk, err := scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, errors.NewInvalidSignatureError("plugin file: unmarshal public key", err)
	}
	if !scheme.Verify(pk, signedSpan, signature, nil) {
		return nil, errors.NewInvalidSignatureError("plugin file: signature verification failed")
	}

	computed := sha256.Sum256(signedSpan)
	if computed != checksum {
		return nil, errors.NewInvalidChecksumError("plugin file: checksum mismatch")
	}

	return &PluginFile{
		MLDSALevel:   level,
		PublicKey:    publicKey,
		Signature:    signature,
		MetadataJSON: metadata,
		Bytecode:     bytecode,
		ProtoSchema:  protoSchema,
		Checksum:     checksum,
	}, nil
}

func signedPayload(metadata, bytecode, protoSchema []byte) []byte {
	out := make([]byte, 0, len(metadata)+len(bytecode)+len(protoSchema))
	out = append(out, metadata...)
	out = append(out, bytecode...)
	out = append(out, protoSchema...)
	return out
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func readLengthPrefixed(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodePluginFile serializes a PluginFile back into its on-disk layout,
// computing the trailing checksum. Used by tests and by the plugin
// packaging tooling.
func EncodePluginFile(level byte, publicKey, signature, metadata, bytecode, protoSchema []byte) []byte {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	_ = binary.Write(&buf, binary.LittleEndian, FormatVersion)
	buf.WriteByte(level)
	buf.Write(publicKey)
	buf.Write(signature)

	writeLengthPrefixed(&buf, metadata)
	writeLengthPrefixed(&buf, bytecode)
	writeLengthPrefixed(&buf, protoSchema)

	checksum := sha256.Sum256(signedPayload(metadata, bytecode, protoSchema))
	buf.Write(checksum[:])
	return buf.Bytes()
}

func writeLengthPrefixed(buf *bytes.Buffer, data []byte) {
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	buf.Write(data)
}
