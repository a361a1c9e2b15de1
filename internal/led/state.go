package led

import "slices"

// Method is one actuation strategy.
type Method int

const (
	MethodNone Method = iota
	MethodNative
	MethodBroadcast
	MethodSysfs
	MethodChannels
	MethodSettings
)

func (m Method) String() string {
	switch m {
	case MethodNative:
		return "native"
	case MethodBroadcast:
		return "broadcast"
	case MethodSysfs:
		return "sysfs"
	case MethodChannels:
		return "channels"
	case MethodSettings:
		return "settings"
	default:
		return "none"
	}
}

// ParseMethod parses a method name as printed by String.
func ParseMethod(s string) (Method, bool) {
	for _, m := range []Method{MethodNative, MethodBroadcast, MethodSysfs, MethodChannels, MethodSettings} {
		if m.String() == s {
			return m, true
		}
	}
	return MethodNone, false
}

// DefaultTierOrder is the order used when none is configured.
var DefaultTierOrder = []Method{MethodNative, MethodBroadcast, MethodSysfs, MethodChannels, MethodSettings}

// NormalizeOrder drops duplicates and unknown entries and moves the settings
// fallback to the end, adding it if missing.
func NormalizeOrder(order []Method) []Method {
	out := make([]Method, 0, len(order)+1)
	for _, m := range order {
		if m == MethodNone || m == MethodSettings || slices.Contains(out, m) {
			continue
		}
		out = append(out, m)
	}
	return append(out, MethodSettings)
}

// Tier summarizes the best actuation capability found by the probe.
type Tier int

const (
	TierNotProbed Tier = iota
	TierNativeAPI
	TierBroadcastOnly
	TierSysfsOnly
	TierSettingsOnly
	TierUnusable
)

func (t Tier) String() string {
	switch t {
	case TierNotProbed:
		return "not_probed"
	case TierNativeAPI:
		return "native_api_available"
	case TierBroadcastOnly:
		return "broadcast_only"
	case TierSysfsOnly:
		return "sysfs_only"
	case TierSettingsOnly:
		return "settings_only"
	case TierUnusable:
		return "unusable"
	default:
		return "unknown"
	}
}

// State is a snapshot of the driver's capability state.
type State struct {
	Tier       Tier
	Interfaces []string
	LastMethod Method
}

// Ready reports whether commands can be attempted.
func (s State) Ready() bool {
	return s.Tier != TierNotProbed && s.Tier != TierUnusable
}
