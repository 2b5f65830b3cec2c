package model

import (
	"time"

	"github.com/hathorqa/qaconsole/src/hathorapi"
)

type WalletStatus string

const (
	WalletStatusIdle     WalletStatus = "idle"
	WalletStatusStarting WalletStatus = "starting"
	WalletStatusSyncing  WalletStatus = "syncing"
	WalletStatusReady    WalletStatus = "ready"
	WalletStatusError    WalletStatus = "error"
)

// WalletMetadata is immutable after creation.
type WalletMetadata struct {
	FriendlyName string    `json:"friendly_name"`
	Network      string    `json:"network"`
	CreatedAt    time.Time `json:"created_at"`
}

// WalletRecord is the registry's view of one wallet. Status and Instance are
// mutated by the registry only; everything else reads snapshots.
type WalletRecord struct {
	ID       string         `json:"id"`
	Metadata WalletMetadata `json:"metadata"`
	Status   WalletStatus   `json:"status"`
	// Instance is nil unless the wallet is running.
	Instance hathorapi.Connection `json:"-"`
	// best-effort projections, refreshed from events, may be stale
	FirstAddress string `json:"first_address,omitempty"`
	Balance      uint64 `json:"balance"`
	// LastError holds the failure reason while Status is error.
	LastError string `json:"last_error,omitempty"`
}

func WalletArrayToMap(arr []WalletRecord) map[string]WalletRecord {
	mapped := map[string]WalletRecord{}
	for _, v := range arr {
		mapped[v.ID] = v
	}
	return mapped
}
