package enums

import "fmt"

// TransactionKind describes why value moved between wallets.
type TransactionKind string

const (
	// TransactionKindPayment is the requester-to-provider settlement transfer.
	TransactionKindPayment TransactionKind = "payment"
	// TransactionKindCharge is an externally funded top-up; the only kind
	// that increases the total balance held across all wallets.
	TransactionKindCharge TransactionKind = "charge"
	// TransactionKindReversal compensates a prior transfer without mutating it.
	TransactionKindReversal TransactionKind = "reversal"
)

var validTransactionKinds = []TransactionKind{
	TransactionKindPayment,
	TransactionKindCharge,
	TransactionKindReversal,
}

// IsValid reports whether the value matches the canonical transaction kind enum.
func (k TransactionKind) IsValid() bool {
	for _, candidate := range validTransactionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseTransactionKind converts the raw string to TransactionKind.
func ParseTransactionKind(value string) (TransactionKind, error) {
	for _, candidate := range validTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction kind %q", value)
}
