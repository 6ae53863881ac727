package repositories

import (
	"bandmate/errors"
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// Records carry wall-clock timestamps. CBOR's default time encoding keeps
// whole seconds only, which would make a re-read record disagree with the
// one handed back at write time; RFC 3339 with nanoseconds round-trips
// exactly.
var recordEnc = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// With n writers racing on one key, one commits per round, so the
// unluckiest transaction needs about n attempts. The bound only exists to
// keep a livelocked store from spinning forever.
const maxUpdateRetries = 20

// update runs fn in a read-write transaction. Badger's optimistic
// concurrency control aborts transactions whose read set was written by a
// concurrent commit, which is routine when several participants touch the
// same record at once, so aborted transactions are re-run a bounded number
// of times. A conflict that survives every retry surfaces as ErrConflict.
// fn must reset any captured outputs on entry, it may run more than once.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxUpdateRetries; i++ {
		err = db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", errors.ErrConflict, err)
}
