package core

// transaction.go – the signed transaction record carried by the pool, the
// wire and the confirmed-transaction trie. The payload is opaque to the core;
// the target application decodes it during execution.

import (
	"fmt"
	"strconv"
	"time"
)

// HeaderTimestamp is the mandatory transaction header carrying the pool order
// key, a microsecond Unix timestamp in decimal form.
const HeaderTimestamp = "timestamp"

// SignedTransaction wraps an application payload with its routing name, a
// free-form header map and the sender's detached signature over the payload.
type SignedTransaction struct {
	Txn       []byte            `cbor:"txn"`
	AppName   string            `cbor:"app_name"`
	Header    map[string]string `cbor:"header"`
	Signature []byte            `cbor:"signature"`
}

// NewSignedTransaction assembles a record for the given app payload, stamping
// the order-key header with the current time.
func NewSignedTransaction(appName string, payload, signature []byte) *SignedTransaction {
	return &SignedTransaction{
		Txn:     payload,
		AppName: appName,
		Header: map[string]string{
			HeaderTimestamp: strconv.FormatUint(uint64(time.Now().UnixMicro()), 10),
		},
		Signature: signature,
	}
}

// Hash returns the transaction identity: the digest of the full signed
// record's canonical encoding.
func (tx *SignedTransaction) Hash() Hash {
	return ObjectHash(tx)
}

// OrderKey parses the timestamp header used as the pool order key.
func (tx *SignedTransaction) OrderKey() (TxnPoolKey, error) {
	raw, ok := tx.Header[HeaderTimestamp]
	if !ok {
		return 0, fmt.Errorf("transaction missing %q header", HeaderTimestamp)
	}
	key, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q header: %w", HeaderTimestamp, err)
	}
	return key, nil
}

// State is the per-address entry of the state trie: an opaque application
// payload plus the storage root and code hash reserved for richer apps.
type State struct {
	Data        []byte `cbor:"data"`
	StorageRoot Hash   `cbor:"storage_root"`
	CodeHash    Hash   `cbor:"code_hash"`
}

// NewState returns an empty state entry.
func NewState() *State {
	return &State{}
}

func (s *State) SetData(data []byte) { s.Data = append([]byte(nil), data...) }

func (s *State) GetData() []byte { return s.Data }
