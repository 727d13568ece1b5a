package storage

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"
)

// tempSeq disambiguates temp names generated within the same nanosecond.
var tempSeq atomic.Uint64

// TempName derives the name for the transaction-scoped shuffle copy of table.
// The suffix hashes the table name, the current nanotime and a process-local
// sequence number, which keeps two runs hitting the same table from colliding
// on the temp object. The result always satisfies the identifier allow-list.
func TempName(table string) string {
	seed := fmt.Sprintf("%s|%d|%d", table, time.Now().UnixNano(), tempSeq.Add(1))
	return fmt.Sprintf("shuffle_tmp_%016x", xxh3.HashString(seed))
}
