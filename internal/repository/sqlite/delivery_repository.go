package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"edgeagent/internal/model"
)

// DeliveryRepository implements repository.DeliveryRepository for SQLite.
type DeliveryRepository struct {
	db *DB
}

// NewDeliveryRepository creates a new SQLite delivery repository.
func NewDeliveryRepository(db *DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// InsertBatch adds deliveries in a single transaction.
func (r *DeliveryRepository) InsertBatch(deliveries []model.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO deliveries (context, message_id, channel, properties, status, detail, dispatched_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range deliveries {
		props, err := encodeProperties(d.Properties)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(int64(d.Context), d.MessageID, d.Channel, props, string(d.Status), d.Detail,
			d.DispatchedAt.UnixNano(), d.SettledAt.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert delivery: %w", err)
		}
	}

	return tx.Commit()
}

// GetStats summarizes the journal.
func (r *DeliveryRepository) GetStats() (*model.DeliveryStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.DeliveryStats{
		PerStatus:  make(map[model.DeliveryStatus]int),
		PerChannel: make(map[string]int),
	}

	var avgLatency sql.NullFloat64
	var lastSettled sql.NullInt64
	err := r.db.Conn().QueryRow(`
		SELECT COUNT(*), AVG(settled_at - dispatched_at), MAX(settled_at) FROM deliveries
	`).Scan(&stats.Total, &avgLatency, &lastSettled)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery totals: %w", err)
	}
	if avgLatency.Valid {
		stats.AvgLatency = time.Duration(avgLatency.Float64)
	}
	if lastSettled.Valid {
		stats.LastSettled = time.Unix(0, lastSettled.Int64)
	}

	if err := r.countBy("status", func(key string, n int) {
		stats.PerStatus[model.DeliveryStatus(key)] = n
	}); err != nil {
		return nil, err
	}
	if err := r.countBy("channel", func(key string, n int) {
		stats.PerChannel[key] = n
	}); err != nil {
		return nil, err
	}

	return stats, nil
}

// countBy groups deliveries by column. Callers pass a fixed column name.
func (r *DeliveryRepository) countBy(column string, add func(key string, n int)) error {
	rows, err := r.db.Conn().Query(fmt.Sprintf(`SELECT %s, COUNT(*) FROM deliveries GROUP BY %s`, column, column))
	if err != nil {
		return fmt.Errorf("failed to count deliveries by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		add(key, n)
	}
	return rows.Err()
}

// GetRecent returns up to limit deliveries, most recently settled first.
func (r *DeliveryRepository) GetRecent(limit int) ([]model.Delivery, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, context, message_id, channel, properties, status, detail, dispatched_at, settled_at
		FROM deliveries ORDER BY settled_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := make([]model.Delivery, 0)
	for rows.Next() {
		var (
			d            model.Delivery
			ctx          int64
			props        string
			status       string
			dispatchedAt int64
			settledAt    int64
		)
		if err := rows.Scan(&d.ID, &ctx, &d.MessageID, &d.Channel, &props, &status, &d.Detail, &dispatchedAt, &settledAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.Context = uint64(ctx)
		d.Status = model.DeliveryStatus(status)
		d.DispatchedAt = time.Unix(0, dispatchedAt)
		d.SettledAt = time.Unix(0, settledAt)
		if d.Properties, err = decodeProperties(props); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}

// GetTotalCount returns the number of journaled deliveries.
func (r *DeliveryRepository) GetTotalCount() (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM deliveries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count deliveries: %w", err)
	}
	return count, nil
}

// DeleteAll removes every journaled delivery.
func (r *DeliveryRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM deliveries`); err != nil {
		return fmt.Errorf("failed to delete deliveries: %w", err)
	}
	return nil
}

func encodeProperties(props map[string]string) (string, error) {
	if len(props) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("failed to encode properties: %w", err)
	}
	return string(data), nil
}

func decodeProperties(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	props := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	return props, nil
}
