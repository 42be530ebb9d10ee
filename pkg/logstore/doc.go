// Package logstore keeps the append-only, indexed log of one supervised
// process.
//
// Lines read from the child are classified against the emulator's log
// grammar ("[Class] <Level> message"), assigned a monotonically increasing
// RowID and indexed by level. Class labels are interned into small ClassID
// handles owned by the Store, so equal class text always yields the same
// handle and observers only need to be told about a class once.
//
// A Store carries its own lock; activity on one process never contends with
// another.
package logstore
