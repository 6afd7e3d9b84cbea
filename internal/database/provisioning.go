package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flowpbx/sccpd/internal/sccp"
)

// provisioningRepo implements ProvisioningRepository.
type provisioningRepo struct {
	db *DB
}

// NewProvisioningRepository creates a new ProvisioningRepository.
func NewProvisioningRepository(db *DB) ProvisioningRepository {
	return &provisioningRepo{db: db}
}

// Load reads every line and device. Lines come back sorted by name, devices
// by id, and buttons in position order.
func (r *provisioningRepo) Load(ctx context.Context) (sccp.Provisioning, error) {
	var p sccp.Provisioning

	rows, err := r.db.QueryContext(ctx,
		`SELECT name, label, cid_name, cid_num, incoming_limit, forward_all, forward_busy,
		        subscription_number, subscription_name
		 FROM lines ORDER BY name`)
	if err != nil {
		return p, fmt.Errorf("querying lines: %w", err)
	}
	for rows.Next() {
		var l sccp.LineConfig
		if err := rows.Scan(&l.Name, &l.Label, &l.CallerIDName, &l.CallerIDNumber, &l.IncomingLimit,
			&l.ForwardAll, &l.ForwardBusy, &l.SubscriptionNumber, &l.SubscriptionName); err != nil {
			rows.Close()
			return p, fmt.Errorf("scanning line row: %w", err)
		}
		p.Lines = append(p.Lines, l)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return p, fmt.Errorf("iterating lines: %w", err)
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT id, description, nat, keepalive FROM devices ORDER BY id`)
	if err != nil {
		return p, fmt.Errorf("querying devices: %w", err)
	}
	index := make(map[string]int)
	for rows.Next() {
		var d sccp.DeviceConfig
		if err := rows.Scan(&d.ID, &d.Description, &d.NAT, &d.Keepalive); err != nil {
			rows.Close()
			return p, fmt.Errorf("scanning device row: %w", err)
		}
		index[d.ID] = len(p.Devices)
		p.Devices = append(p.Devices, d)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return p, fmt.Errorf("iterating devices: %w", err)
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT device_id, type, line, subscription_number, subscription_name, forward_all, number, label
		 FROM device_buttons ORDER BY device_id, position`)
	if err != nil {
		return p, fmt.Errorf("querying device buttons: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			deviceID string
			line     sql.NullString
			b        sccp.ButtonConfig
		)
		if err := rows.Scan(&deviceID, &b.Type, &line, &b.SubscriptionNumber, &b.SubscriptionName,
			&b.ForwardAll, &b.Number, &b.Label); err != nil {
			return p, fmt.Errorf("scanning device button row: %w", err)
		}
		b.Line = line.String
		i, ok := index[deviceID]
		if !ok {
			continue
		}
		p.Devices[i].Buttons = append(p.Devices[i].Buttons, b)
	}
	return p, rows.Err()
}

// Save validates p and replaces the stored configuration with it in a single
// transaction.
func (r *provisioningRepo) Save(ctx context.Context, p sccp.Provisioning) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validating provisioning: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning provisioning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM device_buttons", "DELETE FROM devices", "DELETE FROM lines"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clearing provisioning: %w", err)
		}
	}

	for _, l := range p.Lines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lines (name, label, cid_name, cid_num, incoming_limit, forward_all, forward_busy,
			                    subscription_number, subscription_name)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.Name, l.Label, l.CallerIDName, l.CallerIDNumber, l.IncomingLimit,
			l.ForwardAll, l.ForwardBusy, l.SubscriptionNumber, l.SubscriptionName,
		)
		if err != nil {
			return fmt.Errorf("inserting line %q: %w", l.Name, err)
		}
	}

	for _, d := range p.Devices {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO devices (id, description, nat, keepalive) VALUES (?, ?, ?, ?)`,
			d.ID, d.Description, d.NAT, d.Keepalive,
		)
		if err != nil {
			return fmt.Errorf("inserting device %q: %w", d.ID, err)
		}
		for i, b := range d.Buttons {
			var line sql.NullString
			if b.Type == sccp.ButtonLine {
				line = sql.NullString{String: b.Line, Valid: true}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO device_buttons (device_id, position, type, line, subscription_number,
				                             subscription_name, forward_all, number, label)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				d.ID, i+1, b.Type, line, b.SubscriptionNumber, b.SubscriptionName,
				b.ForwardAll, b.Number, b.Label,
			)
			if err != nil {
				return fmt.Errorf("inserting button %d of device %q: %w", i+1, d.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing provisioning: %w", err)
	}
	return nil
}
