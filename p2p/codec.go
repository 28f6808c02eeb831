package p2p

import (
	"bytes"
	"encoding/gob"

	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/model"
)

// gossipMessage is the application payload carried inside one framed
// stream message (see writeFrame/readFrame). Spec.md §4.7 calls for
// protobuf-encoded payloads on the *WebSocket* surface specifically;
// nothing in the retrieved pack provides a .proto/generated codec for
// these P2P application messages (protoc/go generate is disallowed
// here), so they are encoded with stdlib encoding/gob — a deliberate,
// documented substitution, not an oversight.
type gossipMessageKind string

const (
	kindWitnessRequest   gossipMessageKind = "witness_request"
	kindWitnessResponse  gossipMessageKind = "witness_response"
	kindWitnessBroadcast gossipMessageKind = "witness_broadcast"
	kindMempoolTx        gossipMessageKind = "mempool_tx"
)

type gossipMessage struct {
	Kind      gossipMessageKind
	Height    uint64
	Witnesses []model.BlockWitness
	TxID      string
	TxBytes   []byte
}

func encodeGossipMessage(m gossipMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, errors.NewMalformedMessageError("encode gossip message", err)
	}
	return buf.Bytes(), nil
}

func decodeGossipMessage(data []byte) (gossipMessage, error) {
	var m gossipMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return m, errors.NewMalformedMessageError("decode gossip message", err)
	}
	return m, nil
}
