package storage

import (
	"fmt"
	"sync/atomic"
	"time"
)

var lastID int64

// nextInternalID returns a unique, strictly increasing identifier. Creation
// order therefore matches numeric order, which the duplicate-cleanup rule
// (keep lowest) depends on.
func nextInternalID() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastID)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastID, last, now) {
			return now
		}
	}
}

// rowKey renders an internal id as a fixed-width row key so lexical row order
// in the table matches numeric id order.
func rowKey(id int64) string {
	return fmt.Sprintf("%020d", id)
}
