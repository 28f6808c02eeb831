package model

import "github.com/libsv/go-bt/v2/chainhash"

// Transaction is the minimal record the plugin blockchain API and
// WebSocket surface expose; full transaction indexing (inputs, outputs,
// OP_NET receipt data) belongs to the OP_NET VM and is out of scope here.
type Transaction struct {
	TxID        chainhash.Hash
	BlockHeight uint64
	RawBytes    []byte
}
