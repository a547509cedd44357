package ledger

import (
	"fmt"
	"strings"
)

// CommandType ...
type CommandType string

const (
	// CreateDomainCmd creates an empty domain.
	CreateDomainCmd CommandType = "CreateDomain"
	// CreateAssetCmd creates an asset name#domain with a fixed precision.
	CreateAssetCmd CommandType = "CreateAsset"
	// CreateAccountCmd creates an account name@domain with one signatory.
	CreateAccountCmd CommandType = "CreateAccount"
	// AddAssetQuantityCmd mints an amount of asset into an account.
	AddAssetQuantityCmd CommandType = "AddAssetQuantity"
	// SubtractAssetQuantityCmd burns an amount of asset from an account.
	SubtractAssetQuantityCmd CommandType = "SubtractAssetQuantity"
	// TransferAssetCmd moves an amount of asset between two accounts.
	TransferAssetCmd CommandType = "TransferAsset"
	// AddSignatoryCmd adds a public key to the signatories of an account.
	AddSignatoryCmd CommandType = "AddSignatory"
	// RemoveSignatoryCmd removes a public key from the signatories of an
	// account.
	RemoveSignatoryCmd CommandType = "RemoveSignatory"
	// SetQuorumCmd sets the number of signatures an account's transactions
	// need.
	SetQuorumCmd CommandType = "SetQuorum"
	// GrantPermissionCmd grants a permission to an account.
	GrantPermissionCmd CommandType = "GrantPermission"
)

// Permissions checked by the world state before executing a command.
const (
	CanCreateDomain     = "can_create_domain"
	CanCreateAsset      = "can_create_asset"
	CanCreateAccount    = "can_create_account"
	CanAddAssetQty      = "can_add_asset_qty"
	CanSubtractAssetQty = "can_subtract_asset_qty"
	CanTransfer         = "can_transfer"
	CanReceive          = "can_receive"
	CanSetSignatories   = "can_set_signatories"
	CanGrantPermission  = "can_grant_permission"
)

// AllPermissions ...
var AllPermissions = []string{
	CanCreateDomain,
	CanCreateAsset,
	CanCreateAccount,
	CanAddAssetQty,
	CanSubtractAssetQty,
	CanTransfer,
	CanReceive,
	CanSetSignatories,
	CanGrantPermission,
}

// DefaultPermissions are granted to accounts created by CreateAccount.
var DefaultPermissions = []string{
	CanTransfer,
	CanReceive,
}

// Command is a tagged union: Type says which of the other fields are used.
// Unused fields are left empty.
type Command struct {
	Type CommandType

	DomainID      string `json:",omitempty" codec:",omitempty"`
	AccountName   string `json:",omitempty" codec:",omitempty"`
	AccountID     string `json:",omitempty" codec:",omitempty"`
	AssetName     string `json:",omitempty" codec:",omitempty"`
	AssetID       string `json:",omitempty" codec:",omitempty"`
	SrcAccountID  string `json:",omitempty" codec:",omitempty"`
	DestAccountID string `json:",omitempty" codec:",omitempty"`
	Amount        string `json:",omitempty" codec:",omitempty"`
	Precision     uint8  `json:",omitempty" codec:",omitempty"`
	PublicKey     []byte `json:",omitempty" codec:",omitempty"`
	Quorum        uint32 `json:",omitempty" codec:",omitempty"`
	Permission    string `json:",omitempty" codec:",omitempty"`
	Description   string `json:",omitempty" codec:",omitempty"`
}

// CreateDomain ...
func CreateDomain(domainID string) Command {
	return Command{Type: CreateDomainCmd, DomainID: domainID}
}

// CreateAsset ...
func CreateAsset(assetName, domainID string, precision uint8) Command {
	return Command{Type: CreateAssetCmd, AssetName: assetName, DomainID: domainID, Precision: precision}
}

// CreateAccount ...
func CreateAccount(accountName, domainID string, publicKey []byte) Command {
	return Command{Type: CreateAccountCmd, AccountName: accountName, DomainID: domainID, PublicKey: publicKey}
}

// AddAssetQuantity ...
func AddAssetQuantity(accountID, assetID, amount string) Command {
	return Command{Type: AddAssetQuantityCmd, AccountID: accountID, AssetID: assetID, Amount: amount}
}

// SubtractAssetQuantity ...
func SubtractAssetQuantity(accountID, assetID, amount string) Command {
	return Command{Type: SubtractAssetQuantityCmd, AccountID: accountID, AssetID: assetID, Amount: amount}
}

// TransferAsset ...
func TransferAsset(srcAccountID, destAccountID, assetID, description, amount string) Command {
	return Command{
		Type:          TransferAssetCmd,
		SrcAccountID:  srcAccountID,
		DestAccountID: destAccountID,
		AssetID:       assetID,
		Description:   description,
		Amount:        amount,
	}
}

// AddSignatory ...
func AddSignatory(accountID string, publicKey []byte) Command {
	return Command{Type: AddSignatoryCmd, AccountID: accountID, PublicKey: publicKey}
}

// RemoveSignatory ...
func RemoveSignatory(accountID string, publicKey []byte) Command {
	return Command{Type: RemoveSignatoryCmd, AccountID: accountID, PublicKey: publicKey}
}

// SetQuorum ...
func SetQuorum(accountID string, quorum uint32) Command {
	return Command{Type: SetQuorumCmd, AccountID: accountID, Quorum: quorum}
}

// GrantPermission ...
func GrantPermission(accountID, permission string) Command {
	return Command{Type: GrantPermissionCmd, AccountID: accountID, Permission: permission}
}

// WellFormed checks the fields a command type requires, without looking at the
// world state.
func (c Command) WellFormed() error {
	switch c.Type {
	case CreateDomainCmd:
		return checkName("domain", c.DomainID)
	case CreateAssetCmd:
		if err := checkName("asset", c.AssetName); err != nil {
			return err
		}
		if c.Precision > MaxPrecision {
			return fmt.Errorf("precision %d exceeds %d", c.Precision, MaxPrecision)
		}
		return checkName("domain", c.DomainID)
	case CreateAccountCmd:
		if err := checkName("account", c.AccountName); err != nil {
			return err
		}
		if len(c.PublicKey) == 0 {
			return fmt.Errorf("missing public key")
		}
		return checkName("domain", c.DomainID)
	case AddAssetQuantityCmd, SubtractAssetQuantityCmd:
		if err := checkAccountID(c.AccountID); err != nil {
			return err
		}
		if err := checkAssetID(c.AssetID); err != nil {
			return err
		}
		return checkAmount(c.Amount)
	case TransferAssetCmd:
		if err := checkAccountID(c.SrcAccountID); err != nil {
			return err
		}
		if err := checkAccountID(c.DestAccountID); err != nil {
			return err
		}
		if c.SrcAccountID == c.DestAccountID {
			return fmt.Errorf("source and destination are the same account")
		}
		if err := checkAssetID(c.AssetID); err != nil {
			return err
		}
		return checkAmount(c.Amount)
	case AddSignatoryCmd, RemoveSignatoryCmd:
		if len(c.PublicKey) == 0 {
			return fmt.Errorf("missing public key")
		}
		return checkAccountID(c.AccountID)
	case SetQuorumCmd:
		if c.Quorum == 0 {
			return fmt.Errorf("quorum must be positive")
		}
		return checkAccountID(c.AccountID)
	case GrantPermissionCmd:
		if !isPermission(c.Permission) {
			return fmt.Errorf("unknown permission %q", c.Permission)
		}
		return checkAccountID(c.AccountID)
	default:
		return fmt.Errorf("unknown command type %q", c.Type)
	}
}

func checkName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("empty %s name", kind)
	}
	if strings.ContainsAny(name, "@# ") {
		return fmt.Errorf("%s name %q contains a reserved character", kind, name)
	}
	return nil
}

func checkAccountID(id string) error {
	_, _, err := splitID(id, "@")
	return err
}

func checkAssetID(id string) error {
	_, _, err := splitID(id, "#")
	return err
}

func checkAmount(s string) error {
	a, err := ParseAmount(s)
	if err != nil {
		return err
	}
	if a.Sign() == 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// splitID splits name@domain or name#domain.
func splitID(id, sep string) (name, domain string, err error) {
	parts := strings.Split(id, sep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed id %q, expected name%sdomain", id, sep)
	}
	return parts[0], parts[1], nil
}

func isPermission(p string) bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}
