package repository

import (
	"edgeagent/internal/model"
)

// DeliveryRepository stores settled deliveries.
type DeliveryRepository interface {
	// Create operations
	InsertBatch(deliveries []model.Delivery) error

	// Read operations
	GetStats() (*model.DeliveryStats, error)
	GetRecent(limit int) ([]model.Delivery, error)
	GetTotalCount() (int, error)

	// Delete operations
	DeleteAll() error
}
