package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/backkem/lattice/pkg/wire"
)

// TXT record keys for the device service.
const (
	txtKeyDeviceID = "deviceId"
	txtKeyFirmware = "fw"
	txtKeyName     = "name"
)

// DeviceTXT is the TXT record set advertised for one device.
type DeviceTXT struct {
	// DeviceID is the device's identifier. Required.
	DeviceID string

	// Name is the human-readable device name.
	Name string

	// Firmware is the advertised firmware release.
	Firmware wire.FirmwareVersion
}

// Validate checks the TXT fields.
func (t DeviceTXT) Validate() error {
	if t.DeviceID == "" {
		return ErrMissingDeviceID
	}
	return nil
}

// Encode renders the TXT records in key=value form.
func (t DeviceTXT) Encode() []string {
	records := []string{
		txtKeyDeviceID + "=" + t.DeviceID,
		txtKeyFirmware + "=" + t.Firmware.String(),
	}
	if t.Name != "" {
		records = append(records, txtKeyName+"="+t.Name)
	}
	return records
}

// ParseDeviceTXT parses the TXT records of a discovered device.
// Unknown keys are ignored.
func ParseDeviceTXT(records []string) (DeviceTXT, error) {
	var t DeviceTXT

	for _, record := range records {
		key, value, ok := strings.Cut(record, "=")
		if !ok {
			return DeviceTXT{}, fmt.Errorf("%w: %q", ErrInvalidTXTRecord, record)
		}

		switch key {
		case txtKeyDeviceID:
			t.DeviceID = value
		case txtKeyFirmware:
			fw, err := parseFirmware(value)
			if err != nil {
				return DeviceTXT{}, err
			}
			t.Firmware = fw
		case txtKeyName:
			t.Name = value
		}
	}

	if err := t.Validate(); err != nil {
		return DeviceTXT{}, err
	}
	return t, nil
}

// parseFirmware parses a dotted version string ("0.15.0").
func parseFirmware(s string) (wire.FirmwareVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return wire.FirmwareVersion{}, fmt.Errorf("%w: firmware %q", ErrInvalidTXTRecord, s)
	}

	nums := make([]uint8, 3)
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return wire.FirmwareVersion{}, fmt.Errorf("%w: firmware %q", ErrInvalidTXTRecord, s)
		}
		nums[i] = uint8(n)
	}

	return wire.FirmwareVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}
