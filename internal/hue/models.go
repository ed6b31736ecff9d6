package hue

// LightState is the v1 wire state of a light.
type LightState struct {
	On        bool      `json:"on"`
	Bri       uint8     `json:"bri"`       // 0-254
	Hue       uint16    `json:"hue"`       // 0-65535
	Sat       uint8     `json:"sat"`       // 0-254
	XY        []float64 `json:"xy"`        // CIE coordinates, each 0.0-1.0
	Alert     string    `json:"alert"`     // none / select / lselect
	Effect    string    `json:"effect"`    // none / colorloop
	ColorMode string    `json:"colormode"` // hs / xy / ct
	Reachable bool      `json:"reachable"`
}

// Light represents one controllable light as enumerated by the bridge.
type Light struct {
	ID      string     `json:"-"` // map key in the enumeration response
	Name    string     `json:"name"`
	Type    string     `json:"type"`
	ModelID string     `json:"modelid"`
	State   LightState `json:"state"`
}

// StateUpdate is a partial state change. Only non-nil fields are sent, so a
// brightness-only update never clobbers color set by another client. Each
// settable attribute maps to exactly one wire field via its JSON tag.
type StateUpdate struct {
	On        *bool       `json:"on,omitempty"`
	Bri       *uint8      `json:"bri,omitempty"`
	Hue       *uint16     `json:"hue,omitempty"`
	Sat       *uint8      `json:"sat,omitempty"`
	XY        *[2]float64 `json:"xy,omitempty"`
	Alert     *string     `json:"alert,omitempty"`
	Effect    *string     `json:"effect,omitempty"`
	ColorMode *string     `json:"colormode,omitempty"`
}

// IsEmpty reports whether the update carries no fields at all.
func (u StateUpdate) IsEmpty() bool {
	return u.On == nil && u.Bri == nil && u.Hue == nil && u.Sat == nil &&
		u.XY == nil && u.Alert == nil && u.Effect == nil && u.ColorMode == nil
}

// Power returns an update that only toggles power.
func Power(on bool) StateUpdate {
	return StateUpdate{On: &on}
}
