package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Logger is the logging interface used by the gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Counts is a snapshot of registered connections by role.
type Counts struct {
	Total        int `json:"total"`
	Hardware     int `json:"hardware"`
	Web          int `json:"web"`
	Unidentified int `json:"unidentified"`
}

// Registry tracks open connections and delivers messages to them.
//
// Sends never block: messages for a connection whose buffer is full are
// dropped. Broadcast works on a snapshot, so connections may register or
// unregister while a broadcast is in flight.
type Registry struct {
	mu     sync.RWMutex
	conns  map[*Conn]struct{}
	logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger Logger) *Registry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		conns:  make(map[*Conn]struct{}),
		logger: logger,
	}
}

// Register adds a connection. It starts unidentified.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	n := len(r.conns)
	r.mu.Unlock()
	r.logger.Debug("connection registered", "conn_id", c.ID(), "connections", n)
}

// Unregister removes a connection and closes its outbound queue. Only the
// call that removes the entry closes the queue.
func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	_, existed := r.conns[c]
	delete(r.conns, c)
	n := len(r.conns)
	r.mu.Unlock()

	if existed {
		close(c.send)
		role := c.Role()
		r.logger.Debug("connection unregistered",
			"conn_id", c.ID(), "role", role.Kind.String(), "device_id", role.DeviceID, "connections", n)
	}
}

// Identify sets a connection's role.
func (r *Registry) Identify(c *Conn, role Role) {
	c.setRole(role)
	r.logger.Info("connection identified",
		"conn_id", c.ID(), "role", role.Kind.String(), "device_id", role.DeviceID,
		"user_email", role.UserEmail, "is_admin", role.IsAdmin)
}

// Send delivers msg to one connection.
func (r *Registry) Send(c *Conn, msg any) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	if !c.trySend(data) {
		r.logger.Warn("dropped message for slow or closed connection", "conn_id", c.ID())
	}
	return nil
}

// SendToDevice delivers msg to every connection identified as deviceID and
// returns how many received it. A controller may briefly hold two sockets
// while it reconnects.
func (r *Registry) SendToDevice(deviceID string, msg any) (int, error) {
	return r.deliver(nil, func(role Role) bool { return role.IsDevice(deviceID) }, msg)
}

// Broadcast delivers msg to every connection matching pred, except origin
// and any connection identified as the same controller as origin.
func (r *Registry) Broadcast(origin *Conn, pred Predicate, msg any) (int, error) {
	return r.deliver(origin, pred, msg)
}

func (r *Registry) deliver(origin *Conn, pred Predicate, msg any) (int, error) {
	data, err := encode(msg)
	if err != nil {
		return 0, err
	}

	var originDevice string
	if origin != nil {
		if role := origin.Role(); role.Kind == KindHardware {
			originDevice = role.DeviceID
		}
	}

	sent := 0
	for _, c := range r.snapshot() {
		if c == origin {
			continue
		}
		role := c.Role()
		if originDevice != "" && role.IsDevice(originDevice) {
			continue
		}
		if pred != nil && !pred(role) {
			continue
		}
		if c.trySend(data) {
			sent++
		}
	}
	return sent, nil
}

// Counts returns the number of connections by role.
func (r *Registry) Counts() Counts {
	var out Counts
	for _, c := range r.snapshot() {
		out.Total++
		switch c.Role().Kind {
		case KindHardware:
			out.Hardware++
		case KindWeb:
			out.Web++
		default:
			out.Unidentified++
		}
	}
	return out
}

// CloseAll unregisters every connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[*Conn]struct{})
	r.mu.Unlock()

	for c := range conns {
		close(c.send)
	}
}

func (r *Registry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

func encode(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case []byte:
		return m, nil
	case json.RawMessage:
		return m, nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return data, nil
}
