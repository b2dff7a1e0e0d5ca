// Package hal probes the registered device drivers and keeps track of the
// ones that initialized successfully.
package hal

import (
	"acpitopo/device"
	"acpitopo/device/acpi/table"
	"acpitopo/kernel/kfmt"
	"bytes"
	"sort"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	// tableResolver is the first initialized driver that can serve ACPI
	// tables.
	tableResolver table.Resolver

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer
)

// TableResolver returns the active ACPI table resolver or nil if no driver
// providing ACPI tables has been initialized.
func TableResolver() table.Resolver {
	return devices.tableResolver
}

// ActiveDrivers returns the drivers initialized by DetectHardware.
func ActiveDrivers() []device.Driver {
	return devices.activeDrivers
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers. Drivers found by a previous call are forgotten.
func DetectHardware() {
	devices = managedDevices{}

	// Get driver list and sort by detection priority
	drivers := device.DriverList()
	sort.Sort(drivers)

	probe(drivers)
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList) {
	var w = kfmt.PrefixWriter{Sink: kfmt.GetOutputSink()}

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		onDriverInit(info, drv)
		devices.activeDrivers = append(devices.activeDrivers, drv)
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized.
func onDriverInit(_ *device.DriverInfo, drv device.Driver) {
	switch drvImpl := drv.(type) {
	case table.Resolver:
		if devices.tableResolver != nil {
			return
		}

		devices.tableResolver = drvImpl
	}
}
