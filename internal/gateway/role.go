package gateway

import "strings"

// Kind classifies a connection.
type Kind int

const (
	KindUnidentified Kind = iota
	KindHardware
	KindWeb
)

func (k Kind) String() string {
	switch k {
	case KindHardware:
		return "hardware"
	case KindWeb:
		return "web"
	default:
		return "unidentified"
	}
}

// Role is what a connection identified itself as.
type Role struct {
	Kind       Kind
	DeviceID   string
	ClientType string
	UserEmail  string
	IsAdmin    bool
}

// HardwareRole returns the role of a controller connection.
func HardwareRole(deviceID string) Role {
	return Role{Kind: KindHardware, DeviceID: deviceID}
}

// WebRole returns the role of a browser connection.
func WebRole(clientType, email string, isAdmin bool) Role {
	return Role{Kind: KindWeb, ClientType: clientType, UserEmail: email, IsAdmin: isAdmin}
}

// IsDevice reports whether the role is the controller with the given ID.
func (r Role) IsDevice(deviceID string) bool {
	return r.Kind == KindHardware && deviceID != "" && r.DeviceID == deviceID
}

// CanSee reports whether a web client may receive events for a device owned
// by owner.
func (r Role) CanSee(owner string) bool {
	if r.Kind != KindWeb {
		return false
	}
	if r.IsAdmin {
		return true
	}
	return r.UserEmail != "" && owner != "" && strings.EqualFold(r.UserEmail, owner)
}

// Predicate selects broadcast recipients.
type Predicate func(Role) bool

// WebClients selects every identified web client.
func WebClients(r Role) bool {
	return r.Kind == KindWeb
}

// AuthorizedFor selects web clients that are admins or own the device.
func AuthorizedFor(owner string) Predicate {
	return func(r Role) bool {
		return r.CanSee(owner)
	}
}
