package ledger

import (
	"errors"
	"fmt"
)

// ValidationError is returned when a transaction is malformed, is not signed
// by enough signatories, or breaks a world state rule. The transaction is
// dropped; it never stops the pipeline.
type ValidationError struct {
	TxHash string
	Reason string
}

func (e ValidationError) Error() string {
	if e.TxHash == "" {
		return fmt.Sprintf("invalid transaction: %s", e.Reason)
	}
	return fmt.Sprintf("invalid transaction %s: %s", e.TxHash, e.Reason)
}

// IsValidation ...
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// StorageError is returned when the store fails to persist a block. The local
// peer cannot make progress after a StorageError.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error {
	return e.Err
}

// IsStorage ...
func IsStorage(err error) bool {
	var s StorageError
	return errors.As(err, &s)
}
