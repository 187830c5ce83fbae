package repository

import (
	"context"

	"github.com/ErlanBelekov/voice-scheduler/internal/domain"
)

type DeviceRepository interface {
	Get(ctx context.Context, userID int64, deviceToken string) (*domain.Device, error)
	Create(ctx context.Context, d *domain.Device) (*domain.Device, error)
	Update(ctx context.Context, d *domain.Device) error
}
