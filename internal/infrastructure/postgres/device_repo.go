package postgres

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const deviceColumns = `id, user_id, device_token, platform, device_name, last_active_at, created_at`

type DeviceRepository struct {
	pool *pgxpool.Pool
}

func NewDeviceRepository(pool *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{pool: pool}
}

func (r *DeviceRepository) Get(ctx context.Context, userID int64, deviceToken string) (*domain.Device, error) {
	var d domain.Device
	err := pgxscan.Get(ctx, r.pool, &d,
		`SELECT `+deviceColumns+` FROM user_devices WHERE user_id = $1 AND device_token = $2`,
		userID, deviceToken)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, domain.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	return &d, nil
}

// Create treats a concurrent insert of the same (user, token) pair as a
// touch of the existing row.
func (r *DeviceRepository) Create(ctx context.Context, d *domain.Device) (*domain.Device, error) {
	var created domain.Device
	err := pgxscan.Get(ctx, r.pool, &created, `
		INSERT INTO user_devices (user_id, device_token, platform, device_name, last_active_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, device_token)
		DO UPDATE SET last_active_at = EXCLUDED.last_active_at, platform = EXCLUDED.platform
		RETURNING `+deviceColumns,
		d.UserID, d.DeviceToken, d.Platform, d.DeviceName, d.LastActiveAt)
	if err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}
	return &created, nil
}

func (r *DeviceRepository) Update(ctx context.Context, d *domain.Device) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_devices
		SET    platform = $2, device_name = $3, last_active_at = $4
		WHERE  id = $1`,
		d.ID, d.Platform, d.DeviceName, d.LastActiveAt)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeviceNotFound
	}
	return nil
}
