// Package device models the controllable appliance fleet and owns the
// authoritative device store. All reads and mutations go through the
// store's lock; everything outside this package works on copies.
package device

import "fmt"

// Category classifies a device for baseline-power and comfort-impact
// purposes.
type Category string

const (
	// CategoryHVAC covers climate-control units (heat pumps, AC).
	CategoryHVAC Category = "hvac"
	// CategoryWaterHeater covers water-heating units.
	CategoryWaterHeater Category = "water_heater"
	// CategoryLighting covers dimmable lighting circuits.
	CategoryLighting Category = "lighting"
	// CategoryAppliance covers generic schedulable appliances.
	CategoryAppliance Category = "appliance"
)

// Device is one controllable appliance. Power draw is zero whenever
// the device is off; the store enforces this on every mutation.
type Device struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     Category `json:"category"`
	Location     string   `json:"location"`
	IsOn         bool     `json:"is_on"`
	CurrentPower float64  `json:"current_power"` // watts
	EnergyToday  float64  `json:"energy_today"`  // kWh
	CostToday    float64  `json:"cost_today"`
	TargetTemp   float64  `json:"target_temp,omitempty"` // hvac, water_heater
	Brightness   int      `json:"brightness,omitempty"`  // lighting, 0-100
}

// BaselinePower returns the expected steady-state draw in watts for a
// category. Used for the per-device efficiency ratio and to seed power
// when a device is switched on outside a simulation tick.
func BaselinePower(c Category) float64 {
	switch c {
	case CategoryHVAC:
		return 2500
	case CategoryWaterHeater:
		return 1200
	case CategoryLighting:
		return 150
	case CategoryAppliance:
		return 400
	default:
		return 300
	}
}

// DefaultDevices returns the fixed fleet seeded at startup. The device
// set never changes during a run.
func DefaultDevices() []Device {
	return []Device{
		{
			ID: "hvac-living", Name: "Living Room Heat Pump",
			Category: CategoryHVAC, Location: "living_room",
			IsOn: true, CurrentPower: 2400, TargetTemp: 72,
		},
		{
			ID: "hvac-bedroom", Name: "Bedroom Mini-Split",
			Category: CategoryHVAC, Location: "bedroom",
			IsOn: false, TargetTemp: 68,
		},
		{
			ID: "wh-main", Name: "Water Heater",
			Category: CategoryWaterHeater, Location: "garage",
			IsOn: true, CurrentPower: 1150, TargetTemp: 120,
		},
		{
			ID: "light-kitchen", Name: "Kitchen Lights",
			Category: CategoryLighting, Location: "kitchen",
			IsOn: true, CurrentPower: 160, Brightness: 90,
		},
		{
			ID: "light-office", Name: "Office Lights",
			Category: CategoryLighting, Location: "office",
			IsOn: true, CurrentPower: 120, Brightness: 75,
		},
		{
			ID: "appl-dishwasher", Name: "Dishwasher",
			Category: CategoryAppliance, Location: "kitchen",
			IsOn: false,
		},
		{
			ID: "appl-dryer", Name: "Clothes Dryer",
			Category: CategoryAppliance, Location: "laundry",
			IsOn: false,
		},
	}
}

// Action is a device-control verb.
type Action string

const (
	ActionToggle         Action = "toggle"
	ActionTurnOn         Action = "turn_on"
	ActionTurnOff        Action = "turn_off"
	ActionSetTemperature Action = "set_temperature"
	ActionSetBrightness  Action = "set_brightness"
)

// ParseAction validates a wire-level action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionToggle, ActionTurnOn, ActionTurnOff, ActionSetTemperature, ActionSetBrightness:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}
