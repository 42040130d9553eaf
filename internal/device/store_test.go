package device

import (
	"errors"
	"sync"
	"testing"
)

func testFleet() []Device {
	return []Device{
		{ID: "hvac-1", Name: "Heat Pump", Category: CategoryHVAC, IsOn: true, CurrentPower: 2400, TargetTemp: 72},
		{ID: "light-1", Name: "Lights", Category: CategoryLighting, IsOn: true, CurrentPower: 200, Brightness: 100},
		{ID: "appl-1", Name: "Dryer", Category: CategoryAppliance, IsOn: false},
	}
}

func TestNewStore_OffMeansZeroPower(t *testing.T) {
	seed := testFleet()
	seed[2].CurrentPower = 999 // inconsistent seed
	s := NewStore(seed)

	d, err := s.Get("appl-1")
	if err != nil {
		t.Fatal(err)
	}
	if d.CurrentPower != 0 {
		t.Errorf("off device CurrentPower = %v, want 0", d.CurrentPower)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := NewStore(testFleet())
	snap := s.Snapshot()
	snap[0].CurrentPower = 99999

	d, _ := s.Get("hvac-1")
	if d.CurrentPower == 99999 {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestControl_UnknownDevice(t *testing.T) {
	s := NewStore(testFleet())
	before := s.Snapshot()

	_, err := s.Control("nope", ActionToggle, 0)
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("error = %v, want ErrUnknownDevice", err)
	}

	after := s.Snapshot()
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("device %s changed after failed control", before[i].ID)
		}
	}
}

func TestControl_Toggle(t *testing.T) {
	s := NewStore(testFleet())

	d, err := s.Control("hvac-1", ActionToggle, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.IsOn {
		t.Error("toggle of on device should turn it off")
	}
	if d.CurrentPower != 0 {
		t.Errorf("off device CurrentPower = %v, want 0", d.CurrentPower)
	}

	d, err = s.Control("hvac-1", ActionToggle, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsOn {
		t.Error("toggle of off device should turn it on")
	}
	if d.CurrentPower != BaselinePower(CategoryHVAC) {
		t.Errorf("turned-on device CurrentPower = %v, want baseline %v", d.CurrentPower, BaselinePower(CategoryHVAC))
	}
}

func TestControl_SetTemperature(t *testing.T) {
	s := NewStore(testFleet())

	d, err := s.Control("hvac-1", ActionSetTemperature, 68)
	if err != nil {
		t.Fatal(err)
	}
	if d.TargetTemp != 68 {
		t.Errorf("TargetTemp = %v, want 68", d.TargetTemp)
	}

	if _, err := s.Control("light-1", ActionSetTemperature, 68); err == nil {
		t.Error("set_temperature on a light should fail")
	}
	if _, err := s.Control("hvac-1", ActionSetTemperature, 500); err == nil {
		t.Error("out-of-range temperature should fail")
	}
}

func TestControl_BrightnessProportionalRescale(t *testing.T) {
	s := NewStore(testFleet())

	d, err := s.Control("light-1", ActionSetBrightness, 50)
	if err != nil {
		t.Fatal(err)
	}
	if d.CurrentPower != 100 {
		t.Errorf("CurrentPower = %v, want 100 (200 W rescaled 100→50)", d.CurrentPower)
	}
	if d.Brightness != 50 {
		t.Errorf("Brightness = %d, want 50", d.Brightness)
	}
}

func TestControl_BrightnessZeroTurnsOff(t *testing.T) {
	s := NewStore(testFleet())

	d, err := s.Control("light-1", ActionSetBrightness, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.IsOn {
		t.Error("brightness 0 should turn the light off")
	}
	if d.CurrentPower != 0 {
		t.Errorf("CurrentPower = %v, want 0", d.CurrentPower)
	}
}

func TestControl_BrightnessOnOffDevice(t *testing.T) {
	s := NewStore(testFleet())
	if _, err := s.Control("light-1", ActionTurnOff, 0); err != nil {
		t.Fatal(err)
	}

	d, err := s.Control("light-1", ActionSetBrightness, 40)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsOn {
		t.Error("setting brightness on an off light should turn it on")
	}
	if d.CurrentPower <= 0 {
		t.Errorf("CurrentPower = %v, want > 0", d.CurrentPower)
	}
}

func TestUpdate_ReassertsOffInvariant(t *testing.T) {
	s := NewStore(testFleet())
	s.Update(func(devices []Device) {
		for i := range devices {
			devices[i].CurrentPower = 500 // including the off dryer
		}
	})

	for _, d := range s.Snapshot() {
		if !d.IsOn && d.CurrentPower != 0 {
			t.Errorf("device %s off with power %v after Update", d.ID, d.CurrentPower)
		}
	}
}

// Concurrent controls and ticks must not corrupt state. Run with -race.
func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(testFleet())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 50 {
				s.Control("light-1", ActionSetBrightness, 60)
				s.Control("hvac-1", ActionToggle, 0)
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				s.Update(func(devices []Device) {
					for i := range devices {
						if devices[i].IsOn {
							devices[i].CurrentPower *= 1.01
						}
					}
				})
				s.Snapshot()
			}
		}()
	}
	wg.Wait()

	for _, d := range s.Snapshot() {
		if !d.IsOn && d.CurrentPower != 0 {
			t.Errorf("invariant violated for %s: off with power %v", d.ID, d.CurrentPower)
		}
	}
}

func TestParseAction(t *testing.T) {
	for _, valid := range []string{"toggle", "turn_on", "turn_off", "set_temperature", "set_brightness"} {
		if _, err := ParseAction(valid); err != nil {
			t.Errorf("ParseAction(%q) error: %v", valid, err)
		}
	}
	if _, err := ParseAction("explode"); err == nil {
		t.Error("ParseAction(\"explode\") should fail")
	}
}
