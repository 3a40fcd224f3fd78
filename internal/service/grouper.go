package service

import (
	"github.com/nexus-edge/condition-worker/internal/domain"
)

// BuildGatewayGroups flattens machines into per-gateway task lists. Every
// enabled machine contributes one task per sensor role, so a fleet of N
// machines always yields 5*N tasks across the groups. Group order follows
// the first appearance of each endpoint; task order within a group follows
// machine order then role order.
func BuildGatewayGroups(machines []domain.Machine) []domain.GatewayGroup {
	byKey := make(map[string]*domain.GatewayGroup)
	order := make([]string, 0, len(machines))

	for _, m := range machines {
		if !m.Enabled {
			continue
		}
		for _, role := range domain.RoleOrder {
			sensor, ok := m.Sensors[role]
			if !ok {
				continue
			}
			key := sensor.Gateway.Key()
			group, exists := byKey[key]
			if !exists {
				group = &domain.GatewayGroup{Endpoint: sensor.Gateway}
				byKey[key] = group
				order = append(order, key)
			}
			group.Tasks = append(group.Tasks, domain.SensorTask{
				MachineID:   m.ID,
				MachineName: m.Name,
				Role:        role,
				SlaveID:     sensor.SlaveID,
				Params:      sensor.Params,
			})
		}
	}

	groups := make([]domain.GatewayGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	return groups
}
