package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/identity-service/internal/domain"
)

// LoginDeviceRepository tracks devices users have signed in from.
type LoginDeviceRepository interface {
	// Record upserts the device and returns when it was last seen before this
	// call, or nil when it is new.
	Record(ctx context.Context, device *domain.LoginDevice) (*time.Time, error)
	ListByUser(ctx context.Context, userID string) ([]domain.LoginDevice, error)
}

type loginDeviceRepository struct {
	pgStore
}

// NewLoginDeviceRepository constructs repository.
func NewLoginDeviceRepository(db DB, timeout time.Duration) LoginDeviceRepository {
	return &loginDeviceRepository{pgStore: newPGStore(db, timeout)}
}

func (r *loginDeviceRepository) Record(ctx context.Context, device *domain.LoginDevice) (*time.Time, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
        WITH prev AS (
            SELECT last_used FROM login_devices WHERE user_id=$1 AND device_id=$2
        )
        INSERT INTO login_devices (user_id, device_id, user_agent, browser, os, ip, is_verified, last_used)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (user_id, device_id) DO UPDATE
            SET user_agent=EXCLUDED.user_agent, ip=EXCLUDED.ip, last_used=EXCLUDED.last_used
        RETURNING (SELECT last_used FROM prev), created_at`

	var previous *time.Time
	if err := r.db.QueryRow(ctx, query,
		device.UserID,
		device.DeviceID,
		device.Info.UserAgent,
		device.Info.Browser,
		device.Info.OS,
		device.Info.IP,
		device.IsVerified,
		device.LastUsed,
	).Scan(&previous, &device.CreatedAt); err != nil {
		return nil, fmt.Errorf("record login device: %w", err)
	}
	return previous, nil
}

func (r *loginDeviceRepository) ListByUser(ctx context.Context, userID string) ([]domain.LoginDevice, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
        SELECT user_id, device_id, user_agent, browser, os, ip, is_verified, last_used, created_at
        FROM login_devices WHERE user_id=$1 ORDER BY last_used DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list login devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.LoginDevice
	for rows.Next() {
		var d domain.LoginDevice
		if err := rows.Scan(
			&d.UserID,
			&d.DeviceID,
			&d.Info.UserAgent,
			&d.Info.Browser,
			&d.Info.OS,
			&d.Info.IP,
			&d.IsVerified,
			&d.LastUsed,
			&d.CreatedAt,
		); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
