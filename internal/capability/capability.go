// Package capability classifies the running host into exactly one family.
package capability

import "caiyun/internal/host"

// Family identifies a host family.
type Family int

const (
	FamilyNone Family = iota
	// FamilyFetch exposes an async fetch primitive and a preference store.
	FamilyFetch
	// FamilyCallback exposes a callback HTTP client and a persistent store.
	FamilyCallback
	// FamilyCallbackAlt is FamilyCallback with a different marker and
	// notification option names.
	FamilyCallbackAlt
	// FamilyGeneral is a general-purpose host with require()-able modules.
	FamilyGeneral
	// FamilySandbox exposes native request objects only.
	FamilySandbox
)

func (f Family) String() string {
	switch f {
	case FamilyFetch:
		return "fetch"
	case FamilyCallback:
		return "callback"
	case FamilyCallbackAlt:
		return "callback-alt"
	case FamilyGeneral:
		return "general"
	case FamilySandbox:
		return "sandbox"
	default:
		return "none"
	}
}

// ParseFamily is the inverse of Family.String. Unknown names yield FamilyNone
// and false.
func ParseFamily(s string) (Family, bool) {
	for _, f := range []Family{FamilyFetch, FamilyCallback, FamilyCallbackAlt, FamilyGeneral, FamilySandbox} {
		if f.String() == s {
			return f, true
		}
	}
	return FamilyNone, false
}

// Descriptor is the immutable result of Detect.
type Descriptor struct {
	family    Family
	push      bool
	intercept bool
}

// Detect inspects g and returns its descriptor.
//
// Markers are evaluated in a fixed order and the first match wins:
// fetch, callback-alt, callback, general, sandbox.
func Detect(g host.Globals) Descriptor {
	d := Descriptor{intercept: g.Request != nil}
	switch {
	case g.Fetch != nil:
		d.family = FamilyFetch
	case g.HTTPClient != nil && g.AltMarker:
		d.family = FamilyCallbackAlt
	case g.HTTPClient != nil:
		d.family = FamilyCallback
	case g.Require != nil:
		d.family = FamilyGeneral
		d.push = g.Require.Push != nil
	case g.NewRequest != nil:
		d.family = FamilySandbox
	}
	return d
}

// New builds a descriptor directly. It exists for tests and for callers
// that already know the family.
func New(f Family, push, intercept bool) Descriptor {
	return Descriptor{family: f, push: push && f == FamilyGeneral, intercept: intercept}
}

func (d Descriptor) Family() Family { return d.family }

func (d Descriptor) IsFetch() bool       { return d.family == FamilyFetch }
func (d Descriptor) IsCallback() bool    { return d.family == FamilyCallback }
func (d Descriptor) IsCallbackAlt() bool { return d.family == FamilyCallbackAlt }
func (d Descriptor) IsGeneral() bool     { return d.family == FamilyGeneral }
func (d Descriptor) IsSandbox() bool     { return d.family == FamilySandbox }

// HasPush reports whether a general-purpose host can schedule push notifications.
func (d Descriptor) HasPush() bool { return d.push }

// IsIntercept reports whether the task was invoked for an inbound request.
func (d Descriptor) IsIntercept() bool { return d.intercept }

// CallbackStyle reports whether either callback family is active.
func (d Descriptor) CallbackStyle() bool {
	return d.family == FamilyCallback || d.family == FamilyCallbackAlt
}

func (d Descriptor) String() string {
	s := d.family.String()
	if d.push {
		s += "+push"
	}
	if d.intercept {
		s += "+intercept"
	}
	return s
}
