package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hathorqa/qaconsole/src/eventlog"
	"github.com/hathorqa/qaconsole/src/hathorapi"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// PutWalletEvent archives one ingested event. The in-memory ring is the
// source the resolver reads; this table only exists so a QA session can be
// inspected after the fact.
func PutWalletEvent(ctx context.Context, ev *eventlog.WalletEvent) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		encoded, err := json.Marshal(ev.Payload)
		if err != nil {
			return errors.Wrap(err, "failed to marshal event payload to json")
		}
		_, err = conn.Exec(ctx,
			`INSERT into wallet_events(seq, wallet_id, event_type, timestamp, raw)
					VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
			ev.Seq, ev.WalletID, string(ev.Type), ev.Timestamp.UTC(), encoded)
		return errors.Wrapf(err, "failed to archive event %d", ev.Seq)
	})
}

// GetRecentEvents reads back the newest archived events for a wallet.
func GetRecentEvents(ctx context.Context, walletID string, limit int) ([]*eventlog.WalletEvent, error) {
	var fetched []*eventlog.WalletEvent
	return fetched, DoQuery(ctx, func(conn *pgx.Conn) error {
		cur, err := conn.Query(ctx,
			`SELECT seq, wallet_id, event_type, timestamp, raw
			 FROM wallet_events WHERE wallet_id = $1
			 ORDER BY seq DESC LIMIT $2`, walletID, limit)
		if err != nil {
			return errors.Wrap(err, "failed to fetch events from database")
		}
		defer cur.Close()

		for cur.Next() {
			var (
				seq       uint64
				wallet    string
				eventType string
				ts        time.Time
				raw       []byte
			)
			if err := cur.Scan(&seq, &wallet, &eventType, &ts, &raw); err != nil {
				return errors.Wrap(err, "failed unmarshalling event row")
			}
			ev := &eventlog.WalletEvent{
				Seq:       seq,
				WalletID:  wallet,
				Type:      hathorapi.EventType(eventType),
				Timestamp: ts,
			}
			if err := json.Unmarshal(raw, &ev.Payload); err != nil {
				continue
			}
			fetched = append(fetched, ev)
		}
		return nil
	})
}
