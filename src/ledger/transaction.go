package ledger

import (
	"fmt"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
)

// Transaction is an ordered list of commands issued by one account. It is
// identified by the hash of its payload, which excludes the signatures, so
// every signatory signs the same bytes.
type Transaction struct {
	CreatorAccountID string
	CreatedTime      int64 // unix milliseconds
	Quorum           uint32
	Commands         []Command
	Signatures       []crypto.Signature

	hash []byte
}

type transactionPayload struct {
	CreatorAccountID string
	CreatedTime      int64
	Quorum           uint32
	Commands         []Command
}

// NewTransaction creates an unsigned transaction with a quorum of 1.
func NewTransaction(creatorAccountID string, createdTime int64, commands ...Command) *Transaction {
	return &Transaction{
		CreatorAccountID: creatorAccountID,
		CreatedTime:      createdTime,
		Quorum:           1,
		Commands:         commands,
		Signatures:       []crypto.Signature{},
	}
}

// Payload returns the canonical encoding of everything but the signatures.
func (tx *Transaction) Payload() ([]byte, error) {
	return marshalCanonical(transactionPayload{
		CreatorAccountID: tx.CreatorAccountID,
		CreatedTime:      tx.CreatedTime,
		Quorum:           tx.Quorum,
		Commands:         tx.Commands,
	})
}

// Hash returns the identity of the transaction.
func (tx *Transaction) Hash() ([]byte, error) {
	if len(tx.hash) == 0 {
		payload, err := tx.Payload()
		if err != nil {
			return nil, err
		}
		tx.hash = crypto.SHA256(payload)
	}
	return tx.hash, nil
}

// Hex ...
func (tx *Transaction) Hex() string {
	hash, _ := tx.Hash()
	return common.EncodeToString(hash)
}

// SigningHash implements crypto.Signable.
func (tx *Transaction) SigningHash() ([]byte, error) {
	return tx.Hash()
}

// Sign appends the provider's signature. The identity does not change.
func (tx *Transaction) Sign(provider crypto.Provider) error {
	sig, err := provider.Sign(tx)
	if err != nil {
		return err
	}
	tx.Signatures = append(tx.Signatures, sig)
	return nil
}

// WellFormed checks the structure of the transaction. It does not check the
// signatures against the world state.
func (tx *Transaction) WellFormed() error {
	if err := checkAccountID(tx.CreatorAccountID); err != nil {
		return fmt.Errorf("creator: %w", err)
	}
	if tx.Quorum == 0 {
		return fmt.Errorf("quorum must be positive")
	}
	if len(tx.Commands) == 0 {
		return fmt.Errorf("transaction has no commands")
	}
	for i, c := range tx.Commands {
		if err := c.WellFormed(); err != nil {
			return fmt.Errorf("command %d (%s): %w", i, c.Type, err)
		}
	}
	if len(tx.Signatures) == 0 {
		return fmt.Errorf("transaction is not signed")
	}
	return nil
}

// Marshal ...
func (tx *Transaction) Marshal() ([]byte, error) {
	return marshalCanonical(tx)
}

// Unmarshal ...
func (tx *Transaction) Unmarshal(data []byte) error {
	tx.hash = nil
	return unmarshalCanonical(data, tx)
}

// TransactionHashes returns the hashes of txs, in order.
func TransactionHashes(txs []*Transaction) ([][]byte, error) {
	res := make([][]byte, 0, len(txs))
	for _, tx := range txs {
		h, err := tx.Hash()
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, nil
}
