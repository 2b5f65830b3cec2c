package model

import "time"

// AddressRecord maps an address to the wallet that owns it. Index is nil when
// the address was discovered passively from a transaction instead of derived.
type AddressRecord struct {
	Address      string    `json:"address"`
	WalletID     string    `json:"wallet_id"`
	Index        *uint32   `json:"index"`
	DiscoveredAt time.Time `json:"discovered_at"`
}
