package roku

// Keys lists the remote key names ECP accepts on /keypress.
var Keys = []string{
	"Home",
	"Rev",
	"Fwd",
	"Play",
	"Select",
	"Left",
	"Right",
	"Down",
	"Up",
	"Back",
	"InstantReplay",
	"Info",
	"Backspace",
	"Search",
	"Enter",
	"VolumeUp",
	"VolumeDown",
	"VolumeMute",
	"PowerOff",
	"PowerOn",
	"ChannelUp",
	"ChannelDown",
	"InputTuner",
	"InputHDMI1",
	"InputHDMI2",
	"InputHDMI3",
	"InputHDMI4",
	"InputAV1",
}

var keySet = func() map[string]bool {
	set := make(map[string]bool, len(Keys))
	for _, key := range Keys {
		set[key] = true
	}
	return set
}()

// ValidKey reports whether key is an ECP remote key name.
func ValidKey(key string) bool {
	return keySet[key]
}
