package streamflow

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"
)

// computeDigest hashes the graph structure together with the compile
// parameters that shape its schedule. Equal digests imply identical
// plans, which is what lets run history group runs by graph.
func computeDigest(records []*taskRecord, queues, blockSize int) string {
	h := sha256.New()
	writeField(h, "q"+strconv.Itoa(queues))
	writeField(h, "b"+strconv.Itoa(blockSize))
	for _, rec := range records {
		writeField(h, rec.kind.String())
		if rec.kind == KindReduce {
			writeField(h, rec.mode.String())
		}
		writeField(h, rec.note)
		writeField(h, rec.label)
		writeField(h, strconv.Itoa(rec.count))
		for _, p := range rec.preds {
			writeField(h, strconv.Itoa(int(p)))
		}
		writeField(h, ";")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField writes a length-prefixed field so adjacent fields cannot
// collide ("ab"+"c" versus "a"+"bc").
func writeField(h hash.Hash, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
