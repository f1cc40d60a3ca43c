package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/mbalug7/go-tarts/pkg/sensor"
)

const schema = `
CREATE TABLE IF NOT EXISTS tarts_gateways (
	gateway_id   TEXT PRIMARY KEY,
	channel_mask BIGINT NOT NULL,
	channel      SMALLINT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS tarts_sensors (
	sensor_id       TEXT PRIMARY KEY,
	gateway_id      TEXT NOT NULL,
	sensor_type     INTEGER NOT NULL,
	report_interval INTEGER NOT NULL,
	link_interval   SMALLINT NOT NULL,
	retry_count     SMALLINT NOT NULL,
	recovery        SMALLINT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);`

// PostgresStore keeps records in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects and creates the tables when missing
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (obj *PostgresStore) SaveSensor(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO tarts_sensors (
			sensor_id, gateway_id, sensor_type, report_interval,
			link_interval, retry_count, recovery, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sensor_id) DO UPDATE SET
			gateway_id = EXCLUDED.gateway_id,
			sensor_type = EXCLUDED.sensor_type,
			report_interval = EXCLUDED.report_interval,
			link_interval = EXCLUDED.link_interval,
			retry_count = EXCLUDED.retry_count,
			recovery = EXCLUDED.recovery,
			updated_at = EXCLUDED.updated_at`
	_, err := obj.db.ExecContext(ctx, query,
		rec.ID, rec.GatewayID, int(rec.Type), int(rec.Settings.ReportInterval),
		int(rec.Settings.LinkInterval), int(rec.Settings.RetryCount), int(rec.Settings.Recovery), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sensor %s: %w", rec.ID, err)
	}
	return nil
}

func (obj *PostgresStore) DeleteSensor(ctx context.Context, id string) error {
	res, err := obj.db.ExecContext(ctx, `DELETE FROM tarts_sensors WHERE sensor_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sensor %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: sensor %s", ErrNotFound, id)
	}
	return nil
}

func (obj *PostgresStore) LoadSensors(ctx context.Context) ([]Record, error) {
	rows, err := obj.db.QueryContext(ctx, `
		SELECT sensor_id, gateway_id, sensor_type, report_interval,
		       link_interval, retry_count, recovery, updated_at
		FROM tarts_sensors
		ORDER BY sensor_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                                Record
			sensorType, reportInterval         int
			linkInterval, retryCount, recovery int
		)
		if err := rows.Scan(&rec.ID, &rec.GatewayID, &sensorType, &reportInterval,
			&linkInterval, &retryCount, &recovery, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		rec.Type = sensor.Type(sensorType)
		rec.Settings = sensor.Settings{
			ReportInterval: uint16(reportInterval),
			LinkInterval:   uint8(linkInterval),
			RetryCount:     uint8(retryCount),
			Recovery:       uint8(recovery),
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (obj *PostgresStore) SaveGateway(ctx context.Context, rec GatewayRecord) error {
	query := `
		INSERT INTO tarts_gateways (gateway_id, channel_mask, channel, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (gateway_id) DO UPDATE SET
			channel_mask = EXCLUDED.channel_mask,
			channel = EXCLUDED.channel,
			updated_at = EXCLUDED.updated_at`
	if _, err := obj.db.ExecContext(ctx, query, rec.ID, int64(rec.ChannelMask), int(rec.Channel), rec.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save gateway %s: %w", rec.ID, err)
	}
	return nil
}

func (obj *PostgresStore) Close() error {
	return obj.db.Close()
}
