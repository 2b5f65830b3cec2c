package hathorapi

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MockConnector backs tests and the console's use_mock mode, same role as a
// wallet daemon that always answers.

type MockConnector struct {
	ConnectErr error
	// Gate, when set, blocks Connect until the channel is closed. Lets tests
	// hold a wallet in `starting`.
	Gate <-chan struct{}

	connectCount int32
	mu           sync.Mutex
	connections  map[string]*MockConnection
}

func NewMockConnector() *MockConnector {
	return &MockConnector{connections: map[string]*MockConnection{}}
}

func (m *MockConnector) Connect(ctx context.Context, walletID, network string) (Connection, error) {
	atomic.AddInt32(&m.connectCount, 1)
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.ConnectErr != nil {
		return nil, m.ConnectErr
	}
	conn := NewMockConnection()
	m.mu.Lock()
	m.connections[walletID] = conn
	m.mu.Unlock()
	return conn, nil
}

func (m *MockConnector) ConnectCount() int {
	return int(atomic.LoadInt32(&m.connectCount))
}

// ConnectionFor returns the live mock connection handed out for a wallet id.
func (m *MockConnector) ConnectionFor(walletID string) *MockConnection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connections[walletID]
}

type MockConnection struct {
	mu        sync.Mutex
	addresses []string
	txs       map[string]*TxRecord
	fullTxs   map[string]*FullTxResponse

	// overrides, checked before the maps
	GetTxFn       func(txID string) (*TxRecord, error)
	GetFullTxFn   func(txID string) (*FullTxResponse, error)
	getTxCalls    int32
	getFullCalls  int32
	events        chan RawEvent
	closeOnce     sync.Once
	disconnected  int32
	DisconnectErr error
}

func NewMockConnection() *MockConnection {
	return &MockConnection{
		addresses: []string{"HTRmock0address000000000000000000000"},
		txs:       map[string]*TxRecord{},
		fullTxs:   map[string]*FullTxResponse{},
		events:    make(chan RawEvent, 64),
	}
}

func (c *MockConnection) GetAddressAtIndex(ctx context.Context, index uint32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(index) >= len(c.addresses) {
		return "", fmt.Errorf("no address derived at index %d", index)
	}
	return c.addresses[index], nil
}

func (c *MockConnection) GetTx(ctx context.Context, txID string) (*TxRecord, error) {
	atomic.AddInt32(&c.getTxCalls, 1)
	if c.GetTxFn != nil {
		return c.GetTxFn(txID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txs[txID], nil
}

func (c *MockConnection) GetFullTxByID(ctx context.Context, txID string) (*FullTxResponse, error) {
	atomic.AddInt32(&c.getFullCalls, 1)
	if c.GetFullTxFn != nil {
		return c.GetFullTxFn(txID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if resp, ok := c.fullTxs[txID]; ok {
		return resp, nil
	}
	return &FullTxResponse{Success: false}, nil
}

func (c *MockConnection) Events() <-chan RawEvent {
	return c.events
}

func (c *MockConnection) Disconnect() error {
	atomic.StoreInt32(&c.disconnected, 1)
	c.closeOnce.Do(func() { close(c.events) })
	return c.DisconnectErr
}

func (c *MockConnection) Disconnected() bool {
	return atomic.LoadInt32(&c.disconnected) == 1
}

func (c *MockConnection) GetTxCalls() int     { return int(atomic.LoadInt32(&c.getTxCalls)) }
func (c *MockConnection) GetFullTxCalls() int { return int(atomic.LoadInt32(&c.getFullCalls)) }

func (c *MockConnection) SetAddresses(addrs ...string) {
	c.mu.Lock()
	c.addresses = addrs
	c.mu.Unlock()
}

func (c *MockConnection) PutLocalTx(tx *TxRecord) {
	c.mu.Lock()
	c.txs[tx.TxID] = tx
	c.mu.Unlock()
}

func (c *MockConnection) PutFullTx(txID string, resp *FullTxResponse) {
	c.mu.Lock()
	c.fullTxs[txID] = resp
	c.mu.Unlock()
}

func (c *MockConnection) Emit(ev RawEvent) {
	c.events <- ev
}
