package hathorapi

import "context"

// The wallet SDK is an external collaborator; everything this console knows
// about it goes through Connector/Connection.

type Connector interface {
	Connect(ctx context.Context, walletID, network string) (Connection, error)
}

type Connection interface {
	GetAddressAtIndex(ctx context.Context, index uint32) (string, error)
	// GetTx reads the wallet-local transaction cache. Returns nil, nil when
	// the wallet has never seen the transaction.
	GetTx(ctx context.Context, txID string) (*TxRecord, error)
	// GetFullTxByID queries the remote full node for transaction metadata.
	GetFullTxByID(ctx context.Context, txID string) (*FullTxResponse, error)
	// Events delivers this connection's event stream. The channel is closed
	// on disconnect.
	Events() <-chan RawEvent
	Disconnect() error
}

// TxRecord is the wallet-local view of a transaction.
type TxRecord struct {
	TxID       string  `json:"tx_id"`
	FirstBlock *string `json:"first_block"`
	IsVoided   bool    `json:"is_voided"`
	NCID       *string `json:"nc_id"`
}

// FullTxResponse is the full node's answer for a transaction.
type FullTxResponse struct {
	Success bool    `json:"success"`
	Tx      *FullTx `json:"tx"`
	Meta    TxMeta  `json:"meta"`
}

type FullTx struct {
	TxID string  `json:"hash"`
	NCID *string `json:"nc_id"`
}

type TxMeta struct {
	FirstBlock *string  `json:"first_block"`
	VoidedBy   []string `json:"voided_by"`
}
