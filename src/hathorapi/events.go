package hathorapi

type EventType string

const (
	EventNewTx         EventType = "new-tx"
	EventUpdateTx      EventType = "update-tx"
	EventState         EventType = "state"
	EventMoreAddresses EventType = "more-addresses-loaded"
)

// Wallet sync states reported through EventState payloads.
const (
	StateSyncing = "syncing"
	StateReady   = "ready"
	StateError   = "error"
)

// RawTxData is a transaction snapshot as the SDK emits it. The SDK mixes two
// naming conventions depending on which internal layer produced the event
// (first_block vs firstBlock, is_voided vs voided); both spellings are kept
// here and reconciled exactly once, in Normalize.
type RawTxData struct {
	TxID          string  `json:"tx_id"`
	TxIDCamel     string  `json:"txId"`
	FirstBlock    *string `json:"first_block"`
	FirstBlockCml *string `json:"firstBlock"`
	IsVoided      *bool   `json:"is_voided"`
	Voided        *bool   `json:"voided"`
	NCID          *string `json:"nc_id"`
	Addresses     []string
}

type DerivedAddress struct {
	Address string
	Index   *uint32
}

// RawEvent is a single event off a wallet connection's stream, before
// normalization.
type RawEvent struct {
	Type      EventType
	Tx        *RawTxData
	State     string
	Addresses []DerivedAddress
	Balance   *uint64
}

// EventPayload is the canonical event shape everything downstream of the
// ingestion channel consumes. The dual-naming ambiguity stops here.
type EventPayload struct {
	TxID       string
	FirstBlock *string
	Voided     bool
	HasNano    bool
	State      string
	Addresses  []DerivedAddress
	Balance    *uint64
}

func (r RawEvent) Normalize() EventPayload {
	p := EventPayload{
		State:     r.State,
		Addresses: r.Addresses,
		Balance:   r.Balance,
	}
	if r.Tx == nil {
		return p
	}
	p.TxID = r.Tx.TxID
	if p.TxID == "" {
		p.TxID = r.Tx.TxIDCamel
	}
	p.FirstBlock = r.Tx.FirstBlock
	if p.FirstBlock == nil {
		p.FirstBlock = r.Tx.FirstBlockCml
	}
	if r.Tx.Voided != nil {
		p.Voided = *r.Tx.Voided
	} else if r.Tx.IsVoided != nil {
		p.Voided = *r.Tx.IsVoided
	}
	p.HasNano = r.Tx.NCID != nil
	// addresses seen on a transaction are passive discoveries, no index
	for _, a := range r.Tx.Addresses {
		p.Addresses = append(p.Addresses, DerivedAddress{Address: a})
	}
	return p
}
