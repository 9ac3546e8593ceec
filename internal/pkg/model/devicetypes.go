package model

// Domain is the coarse device classification derived from the bridge's
// type string.
type Domain string

const (
	DomainLight  Domain = "light"
	DomainSwitch Domain = "switch"
	DomainCover  Domain = "cover"
	DomainFan    Domain = "fan"
	DomainSensor Domain = "sensor"
	DomainKeypad Domain = "keypad"
	DomainNone   Domain = ""
)

// deviceDomains maps each bridge-reported device type to its domain.
var deviceDomains = map[string]Domain{
	"WallDimmer":             DomainLight,
	"PlugInDimmer":           DomainLight,
	"InLineDimmer":           DomainLight,
	"SunnataDimmer":          DomainLight,
	"TempInWallPaddleDimmer": DomainLight,
	"WallDimmerWithPreset":   DomainLight,
	"Dimmed":                 DomainLight,
	"SpectrumTune":           DomainLight,

	"WallSwitch":             DomainSwitch,
	"OutdoorPlugInSwitch":    DomainSwitch,
	"PlugInSwitch":           DomainSwitch,
	"InLineSwitch":           DomainSwitch,
	"SunnataSwitch":          DomainSwitch,
	"TempInWallPaddleSwitch": DomainSwitch,
	"Switched":               DomainSwitch,

	"SerenaHoneycombShade":           DomainCover,
	"SerenaRollerShade":              DomainCover,
	"SerenaTiltOnlyWoodBlind":        DomainCover,
	"TriathlonHoneycombShade":        DomainCover,
	"TriathlonRollerShade":           DomainCover,
	"QsWirelessShade":                DomainCover,
	"QsWirelessHorizontalSheerBlind": DomainCover,
	"PalladiomWireFreeShade":         DomainCover,
	"Shade":                          DomainCover,

	"CasetaFanSpeedController":  DomainFan,
	"MaestroFanSpeedController": DomainFan,
	"FanSpeed":                  DomainFan,

	"Pico1Button":           DomainSensor,
	"Pico2Button":           DomainSensor,
	"Pico2ButtonRaiseLower": DomainSensor,
	"Pico3Button":           DomainSensor,
	"Pico3ButtonRaiseLower": DomainSensor,
	"Pico4Button":           DomainSensor,
	"Pico4ButtonScene":      DomainSensor,
	"Pico4ButtonZone":       DomainSensor,
	"Pico4Button2Group":     DomainSensor,
	"FourGroupRemote":       DomainSensor,

	"SunnataKeypad":       DomainKeypad,
	"SunnataHybridKeypad": DomainKeypad,
	"RadioRA3Keypad":      DomainKeypad,
	"HomeownerKeypad":     DomainKeypad,
	"PalladiomKeypad":     DomainKeypad,
}

// occupancySensorTypes are device types Processor-style bridges report for
// occupancy hardware; they have no dedicated occupancy group resource.
var occupancySensorTypes = map[string]struct{}{
	"RPSOccupancySensor":               {},
	"RPSCeilingMountedOccupancySensor": {},
	"CeilingMountedOccupancySensor":    {},
}

// DomainForType classifies a bridge type string; unknown types map to
// DomainNone.
func DomainForType(deviceType string) Domain {
	return deviceDomains[deviceType]
}

// TypesForDomain returns all known type strings for a domain.
func TypesForDomain(domain Domain) []string {
	var types []string
	for deviceType, d := range deviceDomains {
		if d == domain {
			types = append(types, deviceType)
		}
	}
	return types
}

// IsOccupancySensorType reports whether the type string names occupancy
// hardware.
func IsOccupancySensorType(deviceType string) bool {
	_, ok := occupancySensorTypes[deviceType]
	return ok
}
