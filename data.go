package splitz

import (
	"time"

	"github.com/matt-riley/splitz/internal/models"
	"github.com/matt-riley/splitz/internal/targeting"
	"github.com/matt-riley/splitz/internal/visitor"
)

// Data is a visitor fact attachable with [Client.AddData]. Implementations
// are the exported types in this file.
type Data interface {
	apply(v *visitor.Visitor, info models.CustomDataInfo, now time.Time)
}

// CustomData sets values at a custom-data index. Without Overwrite, values
// accumulate with any previously added ones. Indexes flagged local-only in
// the remote configuration are never sent to the tracking endpoint.
type CustomData struct {
	Index     int
	Values    []string
	Overwrite bool
}

func (d CustomData) apply(v *visitor.Visitor, info models.CustomDataInfo, _ time.Time) {
	v.AddCustomData(d.Index, info.LocalOnly(d.Index), d.Overwrite, d.Values...)
	if idx, ok := info.MappingIdentifierIndex(); ok && idx == d.Index && len(d.Values) > 0 {
		v.SetMappingIdentifier(d.Values[0])
	}
}

// PageView records a page view, feeding page-URL, page-title, previous-page
// and page-view-count targeting conditions.
type PageView struct {
	URL   string
	Title string
}

func (d PageView) apply(v *visitor.Visitor, _ models.CustomDataInfo, now time.Time) {
	v.AddPageView(d.URL, d.Title, now)
}

// Device sets the visitor's device type, e.g. "PHONE", "TABLET", "DESKTOP".
type Device struct {
	Type           string
	DoNotOverwrite bool
}

func (d Device) apply(v *visitor.Visitor, _ models.CustomDataInfo, _ time.Time) {
	v.SetDevice(targeting.DeviceFact{Type: d.Type}, d.DoNotOverwrite)
}

// Browser sets the visitor's browser type and version.
type Browser struct {
	Type           string
	Version        float64
	DoNotOverwrite bool
}

func (d Browser) apply(v *visitor.Visitor, _ models.CustomDataInfo, _ time.Time) {
	v.SetBrowser(targeting.BrowserFact{Type: d.Type, Version: d.Version}, d.DoNotOverwrite)
}

// OperatingSystem sets the visitor's operating system.
type OperatingSystem struct {
	Type           string
	DoNotOverwrite bool
}

func (d OperatingSystem) apply(v *visitor.Visitor, _ models.CustomDataInfo, _ time.Time) {
	v.SetOperatingSystem(targeting.OperatingSystemFact{Type: d.Type}, d.DoNotOverwrite)
}

// Geolocation sets the visitor's location. Empty fields act as wildcards in
// targeting.
type Geolocation struct {
	Country        string
	Region         string
	City           string
	DoNotOverwrite bool
}

func (d Geolocation) apply(v *visitor.Visitor, _ models.CustomDataInfo, _ time.Time) {
	v.SetGeolocation(targeting.GeolocationFact{
		Country: d.Country,
		Region:  d.Region,
		City:    d.City,
	}, d.DoNotOverwrite)
}

// Cookie sets one cookie value for cookie targeting conditions.
type Cookie struct {
	Name  string
	Value string
}

func (d Cookie) apply(v *visitor.Visitor, _ models.CustomDataInfo, _ time.Time) {
	v.SetCookie(d.Name, d.Value)
}

// UserAgent sets the visitor's user agent, attached to tracking events.
type UserAgent struct {
	Value string
}

func (d UserAgent) apply(v *visitor.Visitor, _ models.CustomDataInfo, _ time.Time) {
	v.SetUserAgent(d.Value)
}

// Visit records the start of a visit; previous visits feed the
// visit-history targeting conditions. The zero At means "now".
type Visit struct {
	At time.Time
}

func (d Visit) apply(v *visitor.Visitor, _ models.CustomDataInfo, now time.Time) {
	at := d.At
	if at.IsZero() {
		at = now
	}
	v.StartVisit(at)
}
