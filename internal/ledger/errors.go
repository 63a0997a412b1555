package ledger

import "fmt"

// StorageReadError reports that the persisted ledger could not be read or
// decoded. ListAll recovers from it by returning an empty ledger.
type StorageReadError struct {
	Key string
	Err error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("read ledger %q: %v", e.Key, e.Err)
}

func (e *StorageReadError) Unwrap() error { return e.Err }

// StorageWriteError reports that a write or remove did not persist. The
// stored ledger is unchanged and callers must re-read before retrying.
type StorageWriteError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("%s ledger %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }
