package service

import (
	"testing"

	"github.com/nexus-edge/condition-worker/internal/domain"
)

func testMachine(id int64, gateways map[domain.SensorRole]domain.GatewayEndpoint) domain.Machine {
	sensors := make(map[domain.SensorRole]domain.Sensor)
	for i, role := range domain.RoleOrder {
		gw, ok := gateways[role]
		if !ok {
			gw = domain.GatewayEndpoint{IP: "10.0.0.1", Port: 502}
		}
		sensors[role] = domain.Sensor{
			SlaveID: byte(i + 1),
			Gateway: gw,
			Params: []domain.ParameterMapping{
				{Name: string(role), Save: true, Address: 0, Length: 2, Formula: 1, Encoding: domain.EncodingFloat32BE},
			},
		}
	}
	return domain.Machine{ID: id, Name: "machine", Enabled: true, PowerMeterID: id, Sensors: sensors}
}

func TestBuildGatewayGroupsTaskCount(t *testing.T) {
	gwA := domain.GatewayEndpoint{IP: "10.0.0.1", Port: 502}
	gwB := domain.GatewayEndpoint{IP: "10.0.0.2", Port: 502}

	machines := []domain.Machine{
		testMachine(1, map[domain.SensorRole]domain.GatewayEndpoint{
			domain.RolePowerMeter: gwA, domain.RoleTemperature: gwA,
			domain.RoleOnContact: gwB, domain.RoleAlarmContact: gwB, domain.RoleCapstanSpeed: gwB,
		}),
		testMachine(2, map[domain.SensorRole]domain.GatewayEndpoint{
			domain.RolePowerMeter: gwB, domain.RoleTemperature: gwB,
			domain.RoleOnContact: gwB, domain.RoleAlarmContact: gwB, domain.RoleCapstanSpeed: gwB,
		}),
		testMachine(3, nil), // all on gwA
	}

	groups := BuildGatewayGroups(machines)

	total := 0
	seen := make(map[string]bool)
	for _, g := range groups {
		key := g.Endpoint.Key()
		if seen[key] {
			t.Errorf("endpoint %s appears in more than one group", key)
		}
		seen[key] = true
		total += len(g.Tasks)
	}
	if want := 5 * len(machines); total != want {
		t.Errorf("total tasks = %d, want %d", total, want)
	}
	if len(groups) != 2 {
		t.Errorf("expected 2 groups, got %d", len(groups))
	}
}

func TestBuildGatewayGroupsSkipsDisabled(t *testing.T) {
	m := testMachine(1, nil)
	m.Enabled = false
	if groups := BuildGatewayGroups([]domain.Machine{m}); len(groups) != 0 {
		t.Errorf("disabled machine should contribute no groups, got %d", len(groups))
	}
}

func TestBuildGatewayGroupsRoleOrder(t *testing.T) {
	machines := []domain.Machine{testMachine(1, nil)}
	groups := BuildGatewayGroups(machines)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	for i, task := range groups[0].Tasks {
		if task.Role != domain.RoleOrder[i] {
			t.Errorf("task %d role = %s, want %s", i, task.Role, domain.RoleOrder[i])
		}
	}
}

func TestBuildGatewayGroupsEmptyFleet(t *testing.T) {
	if groups := BuildGatewayGroups(nil); len(groups) != 0 {
		t.Errorf("expected no groups, got %d", len(groups))
	}
}
