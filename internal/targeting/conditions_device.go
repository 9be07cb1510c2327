package targeting

import (
	"strconv"
	"strings"
)

// DeviceCondition matches the visitor's device class exactly.
type DeviceCondition struct {
	base
	Device string
}

func (c *DeviceCondition) FactKind() FactKind { return KindDevice }

func (c *DeviceCondition) Check(fact any) bool {
	device, ok := fact.(DeviceFact)
	if !ok {
		return false
	}
	return device.Type == c.Device
}

// BrowserCondition matches the visitor's browser type and, when a version is
// configured, compares the browser version with the configured operator.
type BrowserCondition struct {
	base
	Browser  string
	Version  string
	Operator Operator
}

func (c *BrowserCondition) FactKind() FactKind { return KindBrowser }

func (c *BrowserCondition) Check(fact any) bool {
	browser, ok := fact.(BrowserFact)
	if !ok {
		return false
	}
	if browser.Type != c.Browser {
		return false
	}
	if c.Version == "" {
		return true
	}
	want, err := strconv.ParseFloat(c.Version, 64)
	if err != nil {
		return false
	}
	return compareNumbers(c.Operator, browser.Version, want)
}

// OperatingSystemCondition matches the visitor's operating system exactly.
type OperatingSystemCondition struct {
	base
	OS string
}

func (c *OperatingSystemCondition) FactKind() FactKind { return KindOperatingSystem }

func (c *OperatingSystemCondition) Check(fact any) bool {
	os, ok := fact.(OperatingSystemFact)
	if !ok {
		return false
	}
	return os.Type == c.OS
}

// GeolocationCondition matches the visitor's resolved location. Empty
// configured fields are wildcards; comparison is case-insensitive.
type GeolocationCondition struct {
	base
	Country string
	Region  string
	City    string
}

func (c *GeolocationCondition) FactKind() FactKind { return KindGeolocation }

func (c *GeolocationCondition) Check(fact any) bool {
	geo, ok := fact.(GeolocationFact)
	if !ok {
		return false
	}
	if c.Country != "" && !strings.EqualFold(geo.Country, c.Country) {
		return false
	}
	if c.Region != "" && !strings.EqualFold(geo.Region, c.Region) {
		return false
	}
	if c.City != "" && !strings.EqualFold(geo.City, c.City) {
		return false
	}
	return true
}

// SDKLanguageCondition matches the SDK language and, when a version is
// configured, compares dotted version strings component-wise.
type SDKLanguageCondition struct {
	base
	Language string
	Version  string
	Operator Operator
}

func (c *SDKLanguageCondition) FactKind() FactKind { return KindSDK }

func (c *SDKLanguageCondition) Check(fact any) bool {
	sdk, ok := fact.(SDKFact)
	if !ok {
		return false
	}
	if sdk.Language != c.Language {
		return false
	}
	if c.Version == "" {
		return true
	}
	cmp, ok := compareVersions(sdk.Version, c.Version)
	if !ok {
		return false
	}
	switch c.Operator {
	case OperatorEqual:
		return cmp == 0
	case OperatorGreater:
		return cmp > 0
	case OperatorLower:
		return cmp < 0
	default:
		return false
	}
}

// compareVersions compares dotted numeric versions like "1.2.10". Missing
// components count as zero. ok is false when either side has a non-numeric
// component.
func compareVersions(a, b string) (int, bool) {
	left := strings.Split(a, ".")
	right := strings.Split(b, ".")
	length := len(left)
	if len(right) > length {
		length = len(right)
	}
	for i := 0; i < length; i++ {
		var lv, rv int
		var err error
		if i < len(left) {
			if lv, err = strconv.Atoi(strings.TrimSpace(left[i])); err != nil {
				return 0, false
			}
		}
		if i < len(right) {
			if rv, err = strconv.Atoi(strings.TrimSpace(right[i])); err != nil {
				return 0, false
			}
		}
		if lv != rv {
			if lv > rv {
				return 1, true
			}
			return -1, true
		}
	}
	return 0, true
}
