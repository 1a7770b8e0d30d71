package hub

import (
	"sort"
	"time"

	"github.com/anik12136/uiu-pathshala-server/internal/model"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	ms.hub.mu.RLock()
	defer ms.hub.mu.RUnlock()

	stats := model.ConnectionStats{
		TotalConnected: len(ms.hub.clients),
		TotalOnline:    len(ms.hub.onlineUsers),
	}

	clients := make([]model.ClientInfo, 0, len(ms.hub.clients))
	for c := range ms.hub.clients {
		identity := c.Identity()
		active := identity != "" && ms.hub.onlineUsers[identity] == c

		if identity != "" {
			stats.TotalIdentified++
			if !active {
				stats.TotalSuperseded++
			}
		}

		clients = append(clients, model.ClientInfo{
			ClientID:    c.ID,
			Identity:    identity,
			Active:      active,
			ConnectedAt: c.connectedAt.Format(time.RFC3339),
		})
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ConnectedAt < clients[j].ConnectedAt })

	status := "healthy"
	if stats.TotalConnected == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: stats,
		Online:      ms.hub.rosterLocked(),
		Clients:     clients,
	}
}
