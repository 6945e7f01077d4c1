package device

import (
	"net"
	"strings"
	"time"
)

type RegisterDeviceRequest struct {
	Name                string  `json:"device_name"`
	IP                  string  `json:"device_ip"`
	Port                int     `json:"device_port"`
	SerialID            string  `json:"device_id"`
	Location            *string `json:"location"`
	Description         *string `json:"description"`
	SyncIntervalMinutes int     `json:"sync_interval"`
}

func (r RegisterDeviceRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(r.SerialID) == "" {
		return ErrSerialIDRequired
	}
	if net.ParseIP(r.IP) == nil {
		return ErrInvalidIP
	}
	if r.Port < 1 || r.Port > 65535 {
		return ErrInvalidPort
	}
	if r.SyncIntervalMinutes < 0 {
		return ErrInvalidInterval
	}
	return nil
}

type UpdateDeviceRequest struct {
	Name                *string `json:"device_name"`
	IP                  *string `json:"device_ip"`
	Port                *int    `json:"device_port"`
	Location            *string `json:"location"`
	Description         *string `json:"description"`
	IsActive            *bool   `json:"is_active"`
	SyncIntervalMinutes *int    `json:"sync_interval"`
}

func (r UpdateDeviceRequest) Validate() error {
	if r.IP != nil && net.ParseIP(*r.IP) == nil {
		return ErrInvalidIP
	}
	if r.Port != nil && (*r.Port < 1 || *r.Port > 65535) {
		return ErrInvalidPort
	}
	if r.SyncIntervalMinutes != nil && *r.SyncIntervalMinutes < 0 {
		return ErrInvalidInterval
	}
	return nil
}

type DeviceResponse struct {
	ID                  string     `json:"id"`
	SerialID            string     `json:"device_id"`
	Name                string     `json:"device_name"`
	IP                  string     `json:"device_ip"`
	Port                int        `json:"device_port"`
	Location            *string    `json:"location,omitempty"`
	Description         *string    `json:"description,omitempty"`
	IsActive            bool       `json:"is_active"`
	SyncIntervalMinutes int        `json:"sync_interval"`
	LastSync            *time.Time `json:"last_sync"`
	Health              Health     `json:"device_status"`
	LastError           *string    `json:"last_error,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func ToResponse(d Device) DeviceResponse {
	return DeviceResponse{
		ID:                  d.ID,
		SerialID:            d.SerialID,
		Name:                d.Name,
		IP:                  d.IP,
		Port:                d.Port,
		Location:            d.Location,
		Description:         d.Description,
		IsActive:            d.IsActive,
		SyncIntervalMinutes: d.SyncIntervalMinutes,
		LastSync:            d.LastSync,
		Health:              d.Health,
		LastError:           d.LastError,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}
