package dto

import "edgeagent/internal/model"

// DeliveryReport is the body of GET /api/deliveries.
type DeliveryReport struct {
	Counters model.DeliveryCounters  `json:"counters"`
	Pending  []model.PendingDelivery `json:"pending"`
	Journal  *model.DeliveryStats    `json:"journal,omitempty"`
	Recent   []model.Delivery        `json:"recent,omitempty"`
}
