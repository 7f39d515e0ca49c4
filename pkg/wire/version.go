package wire

import "fmt"

// FirmwareSize is the wire size of a firmware version.
const FirmwareSize = 4

// FirmwareVersion identifies a device firmware release.
type FirmwareVersion struct {
	Major uint8
	Minor uint8
	Patch uint8
}

// Encode returns the 4-byte wire form: patch, minor, major, reserved.
func (v FirmwareVersion) Encode() []byte {
	return []byte{v.Patch, v.Minor, v.Major, 0}
}

// DecodeFirmware parses the 4-byte wire form of a firmware version.
func DecodeFirmware(data []byte) (FirmwareVersion, error) {
	if len(data) < FirmwareSize {
		return FirmwareVersion{}, ErrPayloadTooShort
	}
	return FirmwareVersion{Major: data[2], Minor: data[1], Patch: data[0]}, nil
}

// AtLeast reports whether v is the same or a later release than o.
func (v FirmwareVersion) AtLeast(o FirmwareVersion) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor > o.Minor
	}
	return v.Patch >= o.Patch
}

// String returns the dotted form, e.g. "0.15.0".
func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}
