package hub

import (
	"encoding/binary"

	"github.com/dgraph-io/badger"

	"github.com/samnetworks/samcore/src/net"
)

// Journal is an append-only record of every frame the hub routes, backed by
// a badger database. It exists for debugging a node network after the fact;
// nothing reads it on the routing path, and it is not a delivery queue.
type Journal struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewJournal opens or creates the journal database at path.
func NewJournal(path string) (*Journal, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	seq, err := db.GetSequence([]byte("journal_seq"), 128)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{
		db:  db,
		seq: seq,
	}, nil
}

// Append records one routed frame under the next sequence number.
func (j *Journal) Append(frame *net.Frame) error {
	data, err := frame.Marshal()
	if err != nil {
		return err
	}

	n, err := j.seq.Next()
	if err != nil {
		return err
	}

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, n)

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// Close releases the sequence and the database.
func (j *Journal) Close() error {
	if err := j.seq.Release(); err != nil {
		return err
	}
	return j.db.Close()
}
