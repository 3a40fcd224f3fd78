package domain

import "testing"

func fptr(v float64) *float64 { return &v }

func TestClassifyCondition(t *testing.T) {
	tests := []struct {
		name    string
		reading MachineReading
		hot     bool
		want    Condition
	}{
		{
			name: "off wins over everything",
			reading: MachineReading{
				OnContact:    fptr(0),
				Temperature:  fptr(450),
				AlarmContact: fptr(1),
				CapstanSpeed: fptr(1),
			},
			hot:  true,
			want: ConditionOff,
		},
		{
			name: "heating up while not hot",
			reading: MachineReading{
				OnContact:   fptr(1),
				Temperature: fptr(290),
			},
			hot:  false,
			want: ConditionHeatingUp,
		},
		{
			name: "production when hot with alarm and capstan moving",
			reading: MachineReading{
				OnContact:    fptr(1),
				Temperature:  fptr(310),
				AlarmContact: fptr(1),
				CapstanSpeed: fptr(1),
			},
			hot:  true,
			want: ConditionProduction,
		},
		{
			name: "iddle when alarm contact open",
			reading: MachineReading{
				OnContact:    fptr(1),
				Temperature:  fptr(310),
				AlarmContact: fptr(0),
				CapstanSpeed: fptr(1),
			},
			hot:  true,
			want: ConditionIddle,
		},
		{
			name: "iddle when capstan stopped",
			reading: MachineReading{
				OnContact:    fptr(1),
				Temperature:  fptr(310),
				AlarmContact: fptr(1),
				CapstanSpeed: fptr(0),
			},
			hot:  true,
			want: ConditionIddle,
		},
		{
			name:    "missing values treated as zero",
			reading: MachineReading{},
			hot:     true,
			want:    ConditionOff,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyCondition(tt.reading, tt.hot)
			if got != tt.want {
				t.Errorf("ClassifyCondition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyConditionPure(t *testing.T) {
	reading := MachineReading{
		OnContact:    fptr(1),
		Temperature:  fptr(320),
		AlarmContact: fptr(1),
		CapstanSpeed: fptr(1),
	}
	first := ClassifyCondition(reading, true)
	for i := 0; i < 100; i++ {
		if got := ClassifyCondition(reading, true); got != first {
			t.Fatalf("classification changed between calls: %v then %v", first, got)
		}
	}
}

func TestCountsForDaily(t *testing.T) {
	counted := map[Condition]bool{
		ConditionHeatingUp:  true,
		ConditionIddle:      true,
		ConditionProduction: true,
		ConditionOff:        false,
		ConditionUnknown:    false,
	}
	for cond, want := range counted {
		if got := cond.CountsForDaily(); got != want {
			t.Errorf("%s.CountsForDaily() = %v, want %v", cond, got, want)
		}
	}
}
