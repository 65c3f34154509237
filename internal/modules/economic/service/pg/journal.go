package pg

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"sentinel_bot/internal/modules/economic/service"
	"sentinel_bot/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS economic_deliveries (
	id            BIGSERIAL PRIMARY KEY,
	event_id      TEXT        NOT NULL,
	subscriber    TEXT        NOT NULL,
	country       TEXT        NOT NULL,
	importance    SMALLINT    NOT NULL,
	event_time    TIMESTAMPTZ NOT NULL,
	ok            BOOLEAN     NOT NULL,
	error         TEXT,
	payload       JSONB       NOT NULL,
	delivered_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS economic_deliveries_event_idx ON economic_deliveries (event_id);
`

const insertDelivery = `
INSERT INTO economic_deliveries
	(event_id, subscriber, country, importance, event_time, ok, error, payload, delivered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Journal пишет результаты доставки в postgres.
type Journal struct {
	db db.TxManager
}

func NewJournal(tm db.TxManager) *Journal {
	return &Journal{db: tm}
}

func (j *Journal) EnsureSchema(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.EnsureSchema: %w", err)
		}
	}()
	return j.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, schema)
		return err
	})
}

// Record stores all deliveries of one event in a single transaction.
func (j *Journal) Record(ctx context.Context, deliveries []service.Delivery) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Record: %w", err)
		}
	}()
	if len(deliveries) == 0 {
		return nil
	}

	return j.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		for _, d := range deliveries {
			payload, err := sonic.Marshal(d.Event)
			if err != nil {
				return err
			}
			var errText *string
			if d.Err != nil {
				s := d.Err.Error()
				errText = &s
			}
			_, err = tx.Exec(ctxTx, insertDelivery,
				d.Event.ID,
				d.Subscriber.ID,
				d.Subscriber.Country,
				int16(d.Event.Importance),
				d.Event.Time,
				d.OK(),
				errText,
				payload,
				d.DeliveredAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

var _ service.Journal = (*Journal)(nil)
