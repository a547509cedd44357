package ledger

import (
	"fmt"
	"sort"

	"github.com/ashwinbangalore/irohaBG/src/common"
	"github.com/ashwinbangalore/irohaBG/src/crypto"
)

// Domain ...
type Domain struct {
	ID string
}

// Asset ...
type Asset struct {
	ID        string
	DomainID  string
	Precision uint8
}

// Account ...
type Account struct {
	ID          string
	DomainID    string
	Quorum      uint32
	Signatories map[string][]byte // hex => public key
	Permissions map[string]bool
	Balances    map[string]Amount // asset id => balance
}

func (a *Account) copy() *Account {
	c := &Account{
		ID:          a.ID,
		DomainID:    a.DomainID,
		Quorum:      a.Quorum,
		Signatories: make(map[string][]byte, len(a.Signatories)),
		Permissions: make(map[string]bool, len(a.Permissions)),
		Balances:    make(map[string]Amount, len(a.Balances)),
	}
	for k, v := range a.Signatories {
		c.Signatories[k] = v
	}
	for k, v := range a.Permissions {
		c.Permissions[k] = v
	}
	for k, v := range a.Balances {
		c.Balances[k] = v
	}
	return c
}

// ReadOnlyView is what the simulator sees of the world state. Copy returns a
// private, mutable copy to simulate on.
type ReadOnlyView interface {
	HasDomain(id string) bool
	GetAsset(id string) (Asset, bool)
	HasAccount(id string) bool
	Balance(accountID, assetID string) (Amount, bool)
	Signatories(accountID string) ([][]byte, uint32, bool)
	HasPermission(accountID, permission string) bool
	HasTransaction(hashHex string) bool
	Copy() *WorldState
}

// WorldState holds domains, assets and accounts. It is not safe for concurrent
// mutation; the store only ever mutates private copies. Copies share the
// state they were taken from, which must not be mutated once copied.
type WorldState struct {
	domains  layers[*Domain]
	assets   layers[*Asset]
	accounts layers[*Account]
	// hashes of the transactions applied so far, for replay protection
	txs layers[struct{}]

	// journal of undo functions for the transaction being executed
	journal []func()
}

// NewWorldState returns an empty world state.
func NewWorldState() *WorldState {
	return &WorldState{
		domains:  newLayers[*Domain](),
		assets:   newLayers[*Asset](),
		accounts: newLayers[*Account](),
		txs:      newLayers[struct{}](),
	}
}

// Copy implements ReadOnlyView. The copy shares ws and only holds what is
// written to it afterwards; accounts are copied when first modified. ws is
// only read.
func (ws *WorldState) Copy() *WorldState {
	return &WorldState{
		domains:  ws.domains.child(),
		assets:   ws.assets.child(),
		accounts: ws.accounts.child(),
		txs:      ws.txs.child(),
	}
}

// HasDomain ...
func (ws *WorldState) HasDomain(id string) bool {
	return ws.domains.has(id)
}

// GetAsset ...
func (ws *WorldState) GetAsset(id string) (Asset, bool) {
	a, ok := ws.assets.get(id)
	if !ok {
		return Asset{}, false
	}
	return *a, true
}

// HasAccount ...
func (ws *WorldState) HasAccount(id string) bool {
	return ws.accounts.has(id)
}

// mutableAccount returns an account that is private to ws, copying it from a
// shared level on first use.
func (ws *WorldState) mutableAccount(id string) (*Account, bool) {
	acc, ok := ws.accounts.get(id)
	if !ok {
		return nil, false
	}
	if !ws.accounts.inTop(id) {
		acc = acc.copy()
		ws.accounts.set(id, acc)
	}
	return acc, true
}

// Balance returns the balance of an account in an asset. An existing account
// without a balance holds zero.
func (ws *WorldState) Balance(accountID, assetID string) (Amount, bool) {
	acc, ok := ws.accounts.get(accountID)
	if !ok {
		return Amount{}, false
	}
	asset, ok := ws.assets.get(assetID)
	if !ok {
		return Amount{}, false
	}
	if b, ok := acc.Balances[assetID]; ok {
		return b, true
	}
	return ZeroAmount(asset.Precision), true
}

// Signatories returns the public keys allowed to sign for an account, sorted,
// and the account quorum.
func (ws *WorldState) Signatories(accountID string) ([][]byte, uint32, bool) {
	acc, ok := ws.accounts.get(accountID)
	if !ok {
		return nil, 0, false
	}
	hexes := make([]string, 0, len(acc.Signatories))
	for h := range acc.Signatories {
		hexes = append(hexes, h)
	}
	sort.Strings(hexes)
	res := make([][]byte, 0, len(hexes))
	for _, h := range hexes {
		res = append(res, acc.Signatories[h])
	}
	return res, acc.Quorum, true
}

// HasPermission ...
func (ws *WorldState) HasPermission(accountID, permission string) bool {
	acc, ok := ws.accounts.get(accountID)
	return ok && acc.Permissions[permission]
}

// HasTransaction reports whether a transaction with this hash was applied.
func (ws *WorldState) HasTransaction(hashHex string) bool {
	return ws.txs.has(hashHex)
}

// Counts returns the number of domains, assets and accounts.
func (ws *WorldState) Counts() (int, int, int) {
	return ws.domains.size(), ws.assets.size(), ws.accounts.size()
}

/*******************************************************************************
Execution
*******************************************************************************/

// CheckSignatures verifies that tx carries at least max(tx.Quorum, account
// quorum) valid signatures from distinct signatories of its creator.
func CheckSignatures(view ReadOnlyView, tx *Transaction) error {
	signatories, quorum, ok := view.Signatories(tx.CreatorAccountID)
	if !ok {
		return ValidationError{TxHash: tx.Hex(), Reason: fmt.Sprintf("unknown creator %s", tx.CreatorAccountID)}
	}

	allowed := make(map[string]bool, len(signatories))
	for _, s := range signatories {
		allowed[common.EncodeToString(s)] = true
	}

	valid := make(map[string]bool)
	for _, sig := range tx.Signatures {
		key := common.EncodeToString(sig.PublicKey)
		if !allowed[key] {
			return ValidationError{TxHash: tx.Hex(), Reason: fmt.Sprintf("%s is not a signatory of %s", common.ShortHex(sig.PublicKey), tx.CreatorAccountID)}
		}
		if !crypto.Verify(tx, sig, sig.PublicKey) {
			return ValidationError{TxHash: tx.Hex(), Reason: fmt.Sprintf("invalid signature from %s", common.ShortHex(sig.PublicKey))}
		}
		valid[key] = true
	}

	required := quorum
	if tx.Quorum > required {
		required = tx.Quorum
	}
	if uint32(len(valid)) < required {
		return ValidationError{TxHash: tx.Hex(), Reason: fmt.Sprintf("%d signatures, quorum is %d", len(valid), required)}
	}
	return nil
}

// ApplyTransaction checks the signatures of tx and executes its commands with
// permission checks. Either every command is applied or none is.
func (ws *WorldState) ApplyTransaction(tx *Transaction) error {
	if err := tx.WellFormed(); err != nil {
		return ValidationError{TxHash: tx.Hex(), Reason: err.Error()}
	}
	if ws.HasTransaction(tx.Hex()) {
		return ValidationError{TxHash: tx.Hex(), Reason: "already committed"}
	}
	if err := CheckSignatures(ws, tx); err != nil {
		return err
	}
	return ws.execute(tx, true)
}

// applyGenesis executes tx without signature or permission checks. Only the
// genesis block is applied this way.
func (ws *WorldState) applyGenesis(tx *Transaction) error {
	return ws.execute(tx, false)
}

func (ws *WorldState) execute(tx *Transaction, checkPermissions bool) error {
	ws.journal = ws.journal[:0]

	for i, c := range tx.Commands {
		if err := ws.executeCommand(tx.CreatorAccountID, c, checkPermissions); err != nil {
			ws.rollback()
			return ValidationError{
				TxHash: tx.Hex(),
				Reason: fmt.Sprintf("command %d (%s): %v", i, c.Type, err),
			}
		}
	}

	ws.journal = ws.journal[:0]
	ws.txs.set(tx.Hex(), struct{}{})
	return nil
}

func (ws *WorldState) rollback() {
	for i := len(ws.journal) - 1; i >= 0; i-- {
		ws.journal[i]()
	}
	ws.journal = ws.journal[:0]
}

func (ws *WorldState) require(creator, permission string, check bool) error {
	if check && !ws.HasPermission(creator, permission) {
		return fmt.Errorf("%s lacks permission %s", creator, permission)
	}
	return nil
}

func (ws *WorldState) executeCommand(creator string, c Command, checkPermissions bool) error {
	if err := c.WellFormed(); err != nil {
		return err
	}

	switch c.Type {
	case CreateDomainCmd:
		if err := ws.require(creator, CanCreateDomain, checkPermissions); err != nil {
			return err
		}
		if ws.HasDomain(c.DomainID) {
			return fmt.Errorf("domain %s already exists", c.DomainID)
		}
		ws.domains.set(c.DomainID, &Domain{ID: c.DomainID})
		ws.journal = append(ws.journal, func() { ws.domains.drop(c.DomainID) })

	case CreateAssetCmd:
		if err := ws.require(creator, CanCreateAsset, checkPermissions); err != nil {
			return err
		}
		if !ws.HasDomain(c.DomainID) {
			return fmt.Errorf("unknown domain %s", c.DomainID)
		}
		id := c.AssetName + "#" + c.DomainID
		if ws.assets.has(id) {
			return fmt.Errorf("asset %s already exists", id)
		}
		ws.assets.set(id, &Asset{ID: id, DomainID: c.DomainID, Precision: c.Precision})
		ws.journal = append(ws.journal, func() { ws.assets.drop(id) })

	case CreateAccountCmd:
		if err := ws.require(creator, CanCreateAccount, checkPermissions); err != nil {
			return err
		}
		if !ws.HasDomain(c.DomainID) {
			return fmt.Errorf("unknown domain %s", c.DomainID)
		}
		id := c.AccountName + "@" + c.DomainID
		if ws.HasAccount(id) {
			return fmt.Errorf("account %s already exists", id)
		}
		acc := &Account{
			ID:          id,
			DomainID:    c.DomainID,
			Quorum:      1,
			Signatories: map[string][]byte{common.EncodeToString(c.PublicKey): c.PublicKey},
			Permissions: make(map[string]bool),
			Balances:    make(map[string]Amount),
		}
		for _, p := range DefaultPermissions {
			acc.Permissions[p] = true
		}
		ws.accounts.set(id, acc)
		ws.journal = append(ws.journal, func() { ws.accounts.drop(id) })

	case AddAssetQuantityCmd:
		if err := ws.require(creator, CanAddAssetQty, checkPermissions); err != nil {
			return err
		}
		amount, balance, err := ws.operands(c.AccountID, c.AssetID, c.Amount)
		if err != nil {
			return err
		}
		next, err := balance.Add(amount)
		if err != nil {
			return err
		}
		ws.setBalance(c.AccountID, c.AssetID, next)

	case SubtractAssetQuantityCmd:
		if err := ws.require(creator, CanSubtractAssetQty, checkPermissions); err != nil {
			return err
		}
		if checkPermissions && c.AccountID != creator {
			return fmt.Errorf("%s can only subtract from its own account", creator)
		}
		amount, balance, err := ws.operands(c.AccountID, c.AssetID, c.Amount)
		if err != nil {
			return err
		}
		next, err := balance.Sub(amount)
		if err != nil {
			return err
		}
		ws.setBalance(c.AccountID, c.AssetID, next)

	case TransferAssetCmd:
		if err := ws.require(creator, CanTransfer, checkPermissions); err != nil {
			return err
		}
		if checkPermissions && c.SrcAccountID != creator {
			return fmt.Errorf("%s can only transfer from its own account", creator)
		}
		if checkPermissions && !ws.HasPermission(c.DestAccountID, CanReceive) {
			return fmt.Errorf("%s cannot receive assets", c.DestAccountID)
		}
		amount, srcBalance, err := ws.operands(c.SrcAccountID, c.AssetID, c.Amount)
		if err != nil {
			return err
		}
		_, destBalance, err := ws.operands(c.DestAccountID, c.AssetID, c.Amount)
		if err != nil {
			return err
		}
		nextSrc, err := srcBalance.Sub(amount)
		if err != nil {
			return err
		}
		nextDest, err := destBalance.Add(amount)
		if err != nil {
			return err
		}
		ws.setBalance(c.SrcAccountID, c.AssetID, nextSrc)
		ws.setBalance(c.DestAccountID, c.AssetID, nextDest)

	case AddSignatoryCmd:
		acc, err := ws.ownOrPermitted(creator, c.AccountID, checkPermissions)
		if err != nil {
			return err
		}
		key := common.EncodeToString(c.PublicKey)
		if _, ok := acc.Signatories[key]; ok {
			return fmt.Errorf("%s is already a signatory of %s", common.ShortHex(c.PublicKey), c.AccountID)
		}
		acc.Signatories[key] = c.PublicKey
		ws.journal = append(ws.journal, func() { delete(acc.Signatories, key) })

	case RemoveSignatoryCmd:
		acc, err := ws.ownOrPermitted(creator, c.AccountID, checkPermissions)
		if err != nil {
			return err
		}
		key := common.EncodeToString(c.PublicKey)
		pub, ok := acc.Signatories[key]
		if !ok {
			return fmt.Errorf("%s is not a signatory of %s", common.ShortHex(c.PublicKey), c.AccountID)
		}
		if uint32(len(acc.Signatories)-1) < acc.Quorum {
			return fmt.Errorf("removing a signatory would leave %s below its quorum", c.AccountID)
		}
		delete(acc.Signatories, key)
		ws.journal = append(ws.journal, func() { acc.Signatories[key] = pub })

	case SetQuorumCmd:
		acc, err := ws.ownOrPermitted(creator, c.AccountID, checkPermissions)
		if err != nil {
			return err
		}
		if int(c.Quorum) > len(acc.Signatories) {
			return fmt.Errorf("quorum %d exceeds the %d signatories of %s", c.Quorum, len(acc.Signatories), c.AccountID)
		}
		prev := acc.Quorum
		acc.Quorum = c.Quorum
		ws.journal = append(ws.journal, func() { acc.Quorum = prev })

	case GrantPermissionCmd:
		if err := ws.require(creator, CanGrantPermission, checkPermissions); err != nil {
			return err
		}
		acc, ok := ws.mutableAccount(c.AccountID)
		if !ok {
			return fmt.Errorf("unknown account %s", c.AccountID)
		}
		if acc.Permissions[c.Permission] {
			return fmt.Errorf("%s already has permission %s", c.AccountID, c.Permission)
		}
		acc.Permissions[c.Permission] = true
		ws.journal = append(ws.journal, func() { delete(acc.Permissions, c.Permission) })

	default:
		return fmt.Errorf("unknown command type %q", c.Type)
	}

	return nil
}

// operands parses the amount at the asset's precision and returns the current
// balance of the account.
func (ws *WorldState) operands(accountID, assetID, amountStr string) (Amount, Amount, error) {
	asset, ok := ws.assets.get(assetID)
	if !ok {
		return Amount{}, Amount{}, fmt.Errorf("unknown asset %s", assetID)
	}
	if !ws.HasAccount(accountID) {
		return Amount{}, Amount{}, fmt.Errorf("unknown account %s", accountID)
	}
	amount, err := ParseAmount(amountStr)
	if err != nil {
		return Amount{}, Amount{}, err
	}
	amount, err = amount.Rescale(asset.Precision)
	if err != nil {
		return Amount{}, Amount{}, err
	}
	balance, _ := ws.Balance(accountID, assetID)
	return amount, balance, nil
}

func (ws *WorldState) setBalance(accountID, assetID string, amount Amount) {
	acc, _ := ws.mutableAccount(accountID)
	prev, had := acc.Balances[assetID]
	acc.Balances[assetID] = amount
	ws.journal = append(ws.journal, func() {
		if had {
			acc.Balances[assetID] = prev
		} else {
			delete(acc.Balances, assetID)
		}
	})
}

func (ws *WorldState) ownOrPermitted(creator, accountID string, checkPermissions bool) (*Account, error) {
	if !ws.HasAccount(accountID) {
		return nil, fmt.Errorf("unknown account %s", accountID)
	}
	if checkPermissions && accountID != creator && !ws.HasPermission(creator, CanSetSignatories) {
		return nil, fmt.Errorf("%s lacks permission %s on %s", creator, CanSetSignatories, accountID)
	}
	acc, _ := ws.mutableAccount(accountID)
	return acc, nil
}
