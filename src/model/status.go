package model

type TxStatus string

const (
	TxStatusUnconfirmed TxStatus = "Unconfirmed"
	TxStatusValid       TxStatus = "Valid"
	TxStatusVoided      TxStatus = "Voided"
	TxStatusUnknown     TxStatus = "Unknown"
)

// DeriveTxStatus applies the one status rule used for every source. A plain
// transaction is Valid once observed and not voided; a nano-contract
// transaction additionally needs a confirming block.
func DeriveTxStatus(voided, hasNano, hasFirstBlock bool) TxStatus {
	if voided {
		return TxStatusVoided
	}
	if !hasNano {
		return TxStatusValid
	}
	if hasFirstBlock {
		return TxStatusValid
	}
	return TxStatusUnconfirmed
}

// Permanent reports whether a status is irreversible in this model: Valid
// comes from a block confirmation and Voided from a voiding event, neither
// of which is undone.
func (s TxStatus) Permanent() bool {
	return s == TxStatusValid || s == TxStatusVoided
}
