package device

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownDevice is returned by control operations that reference a
// device id not present in the fleet.
var ErrUnknownDevice = errors.New("unknown device")

// Store owns the device list. All access is serialized through one
// mutex; methods either return copies (Snapshot, Get) or perform the
// whole mutation under the lock (Control, Update) so concurrent
// control commands and simulation ticks never interleave partial
// updates.
type Store struct {
	mu      sync.RWMutex
	devices []Device
}

// NewStore creates a store seeded with the given fleet. An empty seed
// falls back to DefaultDevices.
func NewStore(seed []Device) *Store {
	if len(seed) == 0 {
		seed = DefaultDevices()
	}
	devices := make([]Device, len(seed))
	copy(devices, seed)
	for i := range devices {
		if !devices[i].IsOn {
			devices[i].CurrentPower = 0
		}
	}
	return &Store{devices: devices}
}

// Snapshot returns a copy of every device. Agents work exclusively on
// snapshots so their slow LLM calls never hold the store lock.
func (s *Store) Snapshot() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// Get returns a copy of one device.
func (s *Store) Get(id string) (Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
}

// Count returns the fleet size.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// Control applies one action to one device atomically and returns the
// updated device. Unknown ids and malformed values are failures, not
// panics; the device list is left untouched on any error.
func (s *Store) Control(id string, action Action, value float64) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.devices {
		if s.devices[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Device{}, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	d := s.devices[idx] // work on a copy, commit on success

	switch action {
	case ActionToggle:
		if d.IsOn {
			turnOff(&d)
		} else {
			turnOn(&d)
		}
	case ActionTurnOn:
		turnOn(&d)
	case ActionTurnOff:
		turnOff(&d)
	case ActionSetTemperature:
		if d.Category != CategoryHVAC && d.Category != CategoryWaterHeater {
			return Device{}, fmt.Errorf("device %s (%s) has no temperature setpoint", id, d.Category)
		}
		if value < 40 || value > 160 {
			return Device{}, fmt.Errorf("temperature %.0f out of range", value)
		}
		d.TargetTemp = value
	case ActionSetBrightness:
		if d.Category != CategoryLighting {
			return Device{}, fmt.Errorf("device %s (%s) has no brightness", id, d.Category)
		}
		if value < 0 || value > 100 {
			return Device{}, fmt.Errorf("brightness %.0f out of range", value)
		}
		setBrightness(&d, int(value))
	default:
		return Device{}, fmt.Errorf("unknown action %q", action)
	}

	s.devices[idx] = d
	return d, nil
}

// Update runs fn against the live device slice under the write lock.
// The orchestrator's simulation tick uses this to advance every "on"
// device and read the new total in one critical section. fn must not
// block on I/O.
func (s *Store) Update(fn func(devices []Device)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.devices)
	// Re-assert the off means zero-power invariant after arbitrary
	// mutation.
	for i := range s.devices {
		if !s.devices[i].IsOn {
			s.devices[i].CurrentPower = 0
		}
	}
}

func turnOn(d *Device) {
	if d.IsOn {
		return
	}
	d.IsOn = true
	d.CurrentPower = BaselinePower(d.Category)
	if d.Category == CategoryLighting && d.Brightness == 0 {
		d.Brightness = 100
	}
}

func turnOff(d *Device) {
	d.IsOn = false
	d.CurrentPower = 0
}

// setBrightness rescales current power proportionally to the
// brightness change. Zero brightness is treated as turning the light
// off; the proportional formula is undefined there, and a dark light
// drawing power would violate the off invariant anyway.
func setBrightness(d *Device, brightness int) {
	if brightness == 0 {
		d.Brightness = 0
		turnOff(d)
		return
	}
	if !d.IsOn {
		turnOn(d)
	}
	if d.Brightness > 0 {
		d.CurrentPower = d.CurrentPower / float64(d.Brightness) * float64(brightness)
	} else {
		d.CurrentPower = BaselinePower(d.Category) * float64(brightness) / 100
	}
	d.Brightness = brightness
}
