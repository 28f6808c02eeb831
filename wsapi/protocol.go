package wsapi

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/opnet-chain/opnetd/errors"
)

// Opcode is the fixed-width frame discriminator. Per spec.md §4.7 the
// width (u8 or u16) is fixed per deployment; this server uses u16 so the
// opcode namespace (requests below ErrorThreshold, responses/
// notifications at or above it) has headroom to grow.
type Opcode uint16

// ErrorThreshold partitions the opcode namespace: opcodes below this are
// client requests, opcodes at or above it are server responses,
// notifications, and error frames.
const ErrorThreshold Opcode = 1000

const (
	OpPing      Opcode = 1
	OpHandshake Opcode = 2

	OpGetBlock            Opcode = 10
	OpGetBlockWithTxs     Opcode = 11
	OpGetTransaction      Opcode = 12
	OpGetChainTip         Opcode = 13
	OpGetContract         Opcode = 14
	OpGetContractStorage  Opcode = 15
	OpGetUTXOs            Opcode = 16
	OpSubscribeBlocks     Opcode = 20
	OpSubscribeEpochs     Opcode = 21
	OpSubscribeMempool    Opcode = 22
	OpUnsubscribe         Opcode = 23

	OpPong              Opcode = ErrorThreshold + 1
	OpHandshakeAck      Opcode = ErrorThreshold + 2
	OpResponse          Opcode = ErrorThreshold + 3
	OpErrorFrame        Opcode = ErrorThreshold + 4
	OpNotifyBlock       Opcode = ErrorThreshold + 10
	OpNotifyEpoch       Opcode = ErrorThreshold + 11
	OpNotifyMempoolTx   Opcode = ErrorThreshold + 12
)

// Frame is one wire message: opcode followed by an encoded payload.
// Spec.md §4.7 specifies a protobuf-encoded payload; no .proto/generated
// codec exists anywhere in the retrieved pack and protoc is disallowed
// here (see p2p/codec.go for the identical substitution made for the P2P
// application layer), so the payload is encoded with stdlib
// encoding/gob.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

// EncodeFrame serializes opcode||gob(payload) into wire bytes.
func EncodeFrame(opcode Opcode, payload interface{}) ([]byte, error) {
	var payloadBuf bytes.Buffer
	if payload != nil {
		if err := gob.NewEncoder(&payloadBuf).Encode(payload); err != nil {
			return nil, errors.NewMalformedMessageError("encode frame payload", err)
		}
	}

	out := make([]byte, 2+payloadBuf.Len())
	binary.BigEndian.PutUint16(out[:2], uint16(opcode))
	copy(out[2:], payloadBuf.Bytes())
	return out, nil
}

// DecodeFrame splits wire bytes into an opcode and raw payload bytes.
func DecodeFrame(data []byte) (Opcode, []byte, error) {
	if len(data) < 2 {
		return 0, nil, errors.NewMalformedMessageError("frame shorter than opcode width")
	}
	return Opcode(binary.BigEndian.Uint16(data[:2])), data[2:], nil
}

// DecodePayload gob-decodes raw payload bytes into v.
func DecodePayload(payload []byte, v interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return errors.NewMalformedMessageError("decode frame payload", err)
	}
	return nil
}

// ConnState is the post-handshake connection state machine: CONNECTED →
// HANDSHAKED → (per request: effectively ACTIVE while in flight) → CLOSED.
type ConnState int

const (
	ConnConnected ConnState = iota
	ConnHandshaked
	ConnClosed
)

func (c ConnState) String() string {
	switch c {
	case ConnConnected:
		return "CONNECTED"
	case ConnHandshaked:
		return "HANDSHAKED"
	case ConnClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
