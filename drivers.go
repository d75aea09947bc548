package plughost

import "github.com/shaban/plughost/devices"

// DriverCount returns the number of audio drivers available.
func (e *Engine) DriverCount() int { return e.catalog.Count() }

// DriverName returns the name of driver index, "" when out of range.
func (e *Engine) DriverName(index int) string { return e.catalog.Name(index) }

// DriverDeviceNames returns the devices of driver index.
func (e *Engine) DriverDeviceNames(index int) []string { return e.catalog.DeviceNames(index) }

// DriverDeviceInfo returns the capabilities of one device of driver index.
func (e *Engine) DriverDeviceInfo(index int, device string) devices.DeviceInfo {
	return e.catalog.DeviceInfo(index, device)
}

// DeviceMonitor returns the monitor polling the catalog for device changes
// while the engine runs.
func (e *Engine) DeviceMonitor() *devices.Monitor { return e.monitor }
