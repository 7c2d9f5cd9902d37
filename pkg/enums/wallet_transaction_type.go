package enums

import (
	"fmt"
	"strings"
)

// WalletTransactionType classifies every ledger entry on a wallet.
type WalletTransactionType string

const (
	WalletTxnCreditRefund    WalletTransactionType = "credit_refund"
	WalletTxnCreditManual    WalletTransactionType = "credit_manual"
	WalletTxnDebitOrder      WalletTransactionType = "debit_order"
	WalletTxnDebitWithdrawal WalletTransactionType = "debit_withdrawal"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTxnCreditRefund,
	WalletTxnCreditManual,
	WalletTxnDebitOrder,
	WalletTxnDebitWithdrawal,
}

// String implements fmt.Stringer.
func (w WalletTransactionType) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletTransactionType.
func (w WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// IsCredit reports whether the type increases the balance.
func (w WalletTransactionType) IsCredit() bool {
	return strings.HasPrefix(string(w), "credit_")
}

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}
