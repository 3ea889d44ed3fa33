package wire

import "encoding/json"

// Reading is one approach's battery and temperature sample.
type Reading struct {
	Bat  Text `json:"Bat"`
	Temp Text `json:"Temp"`
}

// IdentifyParam is the Param of a hardware identify frame.
type IdentifyParam struct {
	DeviceID Text `json:"DeviceID"`
}

// InfoParam is the Param of a hardware info frame.
type InfoParam struct {
	DeviceID               Text     `json:"DeviceID"`
	Rtc                    Text     `json:"Rtc"`
	Plan                   Text     `json:"Plan"`
	Period                 Text     `json:"Period"`
	North                  *Reading `json:"North,omitempty"`
	East                   *Reading `json:"East,omitempty"`
	West                   *Reading `json:"West,omitempty"`
	South                  *Reading `json:"South,omitempty"`
	JunctionID             Text     `json:"JunctionId"`
	JunctionPassword       Text     `json:"JunctionPassword"`
	CommunicationFrequency Text     `json:"CommunicationFrequency"`
	CommunicationChannel   Text     `json:"CommunicationChannel"`
}

// Directions returns the readings keyed by approach name, skipping absent ones.
func (p InfoParam) Directions() map[string]Reading {
	out := make(map[string]Reading, 4)
	for name, r := range map[string]*Reading{
		"North": p.North,
		"East":  p.East,
		"West":  p.West,
		"South": p.South,
	} {
		if r != nil {
			out[name] = *r
		}
	}
	return out
}

// StateParam is the Param of a hardware state frame.
type StateParam struct {
	DeviceID     Text `json:"DeviceID"`
	Auto         Flag `json:"Auto"`
	Power        Flag `json:"Power"`
	Next         Flag `json:"Next"`
	Hold         Flag `json:"Hold"`
	Reset        Flag `json:"Reset"`
	Reboot       Flag `json:"Reboot"`
	SignalLevel  Text `json:"SignalLevel"`
	ErrorFlash   Flag `json:"ErrorFlash"`
	SignalConfig Text `json:"SignalConfig"`
}

// ProgReport is the Param of a hardware prog frame. Program is present when
// the frame answers a download request.
type ProgReport struct {
	DeviceID Text            `json:"DeviceID"`
	Plan     Text            `json:"Plan"`
	Period   Text            `json:"Period"`
	Program  json.RawMessage `json:"Program,omitempty"`
}

// UploadFeedback is relayed to web clients when a controller confirms an upload.
type UploadFeedback struct {
	DeviceID string `json:"DeviceID"`
	Plan     string `json:"Plan"`
	Period   string `json:"Period"`
}
