package hathorapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultPollInterval = 3 * time.Second

// DaemonConnector talks to a hathor wallet-headless daemon over its HTTP api.
// The daemon has no push channel on this surface, so each connection polls
// status and tx-history and synthesizes the event stream from the diffs.
type DaemonConnector struct {
	baseURL      string
	client       *http.Client
	logger       *zap.Logger
	pollInterval time.Duration
}

func NewDaemonConnector(baseURL string, logger *zap.Logger) *DaemonConnector {
	return &DaemonConnector{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: 15 * time.Second},
		logger:       logger.With(zap.String("component", "hathor_daemon"), zap.String("daemon", baseURL)),
		pollInterval: defaultPollInterval,
	}
}

func (d *DaemonConnector) Connect(ctx context.Context, walletID, network string) (Connection, error) {
	form := url.Values{}
	form.Set("wallet-id", walletID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/start", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "failed building start request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed starting wallet %s on daemon", walletID)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon rejected wallet start, http %d", resp.StatusCode)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	conn := &daemonConnection{
		walletID: walletID,
		base:     d.baseURL,
		client:   d.client,
		logger:   d.logger.With(zap.String("wallet", walletID)),
		events:   make(chan RawEvent, 64),
		cancel:   cancel,
		seen:     map[string]TxRecord{},
	}
	go conn.poll(pumpCtx, d.pollInterval)
	return conn, nil
}

type daemonConnection struct {
	walletID string
	base     string
	client   *http.Client
	logger   *zap.Logger
	events   chan RawEvent
	cancel   context.CancelFunc

	lastState string
	seen      map[string]TxRecord
}

func (c *daemonConnection) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed building daemon request")
	}
	req.Header.Set("X-Wallet-Id", c.walletID)
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "daemon request %s failed", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon request %s returned http %d", path, resp.StatusCode)
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "failed decoding daemon response for %s", path)
}

func (c *daemonConnection) GetAddressAtIndex(ctx context.Context, index uint32) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := c.get(ctx, fmt.Sprintf("/wallet/address?index=%d&mark_as_used=false", index), &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

func (c *daemonConnection) GetTx(ctx context.Context, txID string) (*TxRecord, error) {
	tx := &TxRecord{}
	err := c.get(ctx, "/wallet/transaction?id="+url.QueryEscape(txID), tx)
	if err != nil {
		// the daemon answers 404-ish bodies for unknown txs; treat those as
		// "wallet has never seen it", not as a failure
		if strings.Contains(err.Error(), "http 404") {
			return nil, nil
		}
		return nil, err
	}
	if tx.TxID == "" {
		return nil, nil
	}
	return tx, nil
}

func (c *daemonConnection) GetFullTxByID(ctx context.Context, txID string) (*FullTxResponse, error) {
	resp := &FullTxResponse{}
	if err := c.get(ctx, "/wallet/full-transaction?id="+url.QueryEscape(txID), resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *daemonConnection) Events() <-chan RawEvent {
	return c.events
}

func (c *daemonConnection) Disconnect() error {
	c.cancel()
	return nil
}

func (c *daemonConnection) poll(ctx context.Context, interval time.Duration) {
	defer close(c.events)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

func (c *daemonConnection) pollOnce(ctx context.Context) {
	var status struct {
		StatusMessage string  `json:"statusMessage"`
		Balance       *uint64 `json:"balance"`
	}
	if err := c.get(ctx, "/wallet/status", &status); err != nil {
		c.logger.Warn("wallet status poll failed", zap.Error(err))
		return
	}
	state := strings.ToLower(status.StatusMessage)
	if state != "" && state != c.lastState {
		c.lastState = state
		c.emit(ctx, RawEvent{Type: EventState, State: state, Balance: status.Balance})
	}

	var history struct {
		Txs []RawTxData `json:"history"`
	}
	if err := c.get(ctx, "/wallet/tx-history?limit=50", &history); err != nil {
		c.logger.Warn("wallet tx-history poll failed", zap.Error(err))
		return
	}
	for i := range history.Txs {
		raw := history.Txs[i]
		id := raw.TxID
		if id == "" {
			id = raw.TxIDCamel
		}
		if id == "" {
			continue
		}
		norm := RawEvent{Tx: &raw}.Normalize()
		prev, known := c.seen[id]
		c.seen[id] = TxRecord{TxID: id, FirstBlock: norm.FirstBlock, IsVoided: norm.Voided}
		switch {
		case !known:
			c.emit(ctx, RawEvent{Type: EventNewTx, Tx: &raw})
		case changed(prev, norm):
			c.emit(ctx, RawEvent{Type: EventUpdateTx, Tx: &raw})
		}
	}
}

func changed(prev TxRecord, now EventPayload) bool {
	if prev.IsVoided != now.Voided {
		return true
	}
	if (prev.FirstBlock == nil) != (now.FirstBlock == nil) {
		return true
	}
	return prev.FirstBlock != nil && now.FirstBlock != nil && *prev.FirstBlock != *now.FirstBlock
}

func (c *daemonConnection) emit(ctx context.Context, ev RawEvent) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}
