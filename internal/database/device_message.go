package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flowpbx/sccpd/internal/database/models"
)

// deviceMessageRepo implements DeviceMessageRepository.
type deviceMessageRepo struct {
	db *DB
}

// NewDeviceMessageRepository creates a new DeviceMessageRepository.
func NewDeviceMessageRepository(db *DB) DeviceMessageRepository {
	return &deviceMessageRepo{db: db}
}

// DeviceMessage returns the stored message, or "" when none is set.
func (r *deviceMessageRepo) DeviceMessage(ctx context.Context, deviceID string) (string, error) {
	var msg string
	err := r.db.QueryRowContext(ctx,
		"SELECT message FROM device_messages WHERE device_id = ?", deviceID,
	).Scan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying device message: %w", err)
	}
	return msg, nil
}

func (r *deviceMessageRepo) SetDeviceMessage(ctx context.Context, deviceID, message string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_messages (device_id, message, updated_at)
		 VALUES (?, ?, datetime('now'))
		 ON CONFLICT(device_id) DO UPDATE SET message = excluded.message, updated_at = excluded.updated_at`,
		deviceID, message,
	)
	if err != nil {
		return fmt.Errorf("setting device message %q: %w", deviceID, err)
	}
	return nil
}

func (r *deviceMessageRepo) DeleteDeviceMessage(ctx context.Context, deviceID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM device_messages WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("deleting device message %q: %w", deviceID, err)
	}
	return nil
}

// List returns every stored message ordered by device id.
func (r *deviceMessageRepo) List(ctx context.Context) ([]models.DeviceMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT device_id, message, updated_at FROM device_messages ORDER BY device_id")
	if err != nil {
		return nil, fmt.Errorf("querying device messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.DeviceMessage
	for rows.Next() {
		var m models.DeviceMessage
		if err := rows.Scan(&m.DeviceID, &m.Message, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning device message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
