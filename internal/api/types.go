package api

import (
	"github.com/classline/notify/internal/model"
	"github.com/google/uuid"
)

// maxPageSize is the largest page the notifications endpoint serves.
const maxPageSize = 500

// NotificationsResponse from GET /notifications
type NotificationsResponse struct {
	Notifications []model.Notification `json:"notifications"`
	Cursor        string               `json:"cursor"`
}

// markDeliveredRequest for POST /notifications/delivered
type markDeliveredRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

// HealthResponse from GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
