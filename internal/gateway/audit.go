package gateway

import (
	"context"

	"github.com/quadrumtech/signal-gateway/internal/audit"
)

// actorOf names who performed an action: the identified web user, else the
// email the request declared.
func actorOf(c *Conn, declared string) string {
	if email := c.Role().UserEmail; email != "" {
		return email
	}
	return declared
}

// record appends an accepted action to the audit trail. Failures are logged
// and never reach the client.
func (g *Gateway) record(ctx context.Context, actor, action, deviceID string, details map[string]any) {
	if g.auditor == nil {
		return
	}
	entry := &audit.Entry{
		Action:    action,
		DeviceID:  deviceID,
		Actor:     actor,
		Details:   details,
		CreatedAt: g.clock.Now().UTC(),
	}
	if err := g.auditor.Create(ctx, entry); err != nil {
		g.logger.Warn("recording audit entry", "device_id", deviceID, "action", action, "error", err)
	}
}
