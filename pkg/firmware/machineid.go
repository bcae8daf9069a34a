package firmware

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// UnknownDeviceID is reported when the machine ID can't be read.
const UnknownDeviceID = "unknown"

// DeviceID retrieves the ID identifying the device. The raw machine ID
// is never exposed, only a hash keyed by the application name.
func DeviceID() string {
	id, err := machineid.ProtectedID("wifista")
	if err != nil {
		glog.Warningf("machine ID unavailable: %v", err)
		return UnknownDeviceID
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
