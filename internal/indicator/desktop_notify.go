package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyService = "org.freedesktop.Notifications"
	notifyObject  = "/org/freedesktop/Notifications"
)

// notification is one org.freedesktop.Notifications.Notify call. Replaces
// is zero for a fresh notification.
type notification struct {
	app       string
	replaces  uint32
	summary   string
	timeoutMS int
}

func (n notification) args() []string {
	return []string{
		n.app,
		strconv.FormatUint(uint64(n.replaces), 10),
		"", // icon
		n.summary,
		"", // body
		"0",
		"0",
		strconv.Itoa(n.timeoutMS),
	}
}

// sendNotification shows or replaces a notification and returns its ID.
func sendNotification(ctx context.Context, n notification) (uint32, error) {
	reply, err := busctl(ctx, "Notify", "susssasa{sv}i", n.args()...)
	if err != nil {
		return 0, err
	}
	return parseUint32Reply(reply)
}

// closeNotification dismisses a notification by ID.
func closeNotification(ctx context.Context, id uint32) error {
	_, err := busctl(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10))
	return err
}

// busctl calls method on the session notification service.
func busctl(ctx context.Context, method, signature string, args ...string) (string, error) {
	argv := append([]string{"--user", "call", notifyService, notifyObject, notifyService, method, signature}, args...)
	out, err := exec.CommandContext(ctx, "busctl", argv...).CombinedOutput()
	reply := strings.TrimSpace(string(out))
	if err != nil {
		if reply == "" {
			return "", fmt.Errorf("busctl %s: %w", method, err)
		}
		return "", fmt.Errorf("busctl %s: %w (%s)", method, err, reply)
	}
	return reply, nil
}

// parseUint32Reply parses busctl's "u <value>" reply format.
func parseUint32Reply(reply string) (uint32, error) {
	sig, value, ok := strings.Cut(reply, " ")
	if !ok || sig != "u" {
		return 0, fmt.Errorf("unexpected busctl reply %q", reply)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse notification id %q: %w", value, err)
	}
	return uint32(id), nil
}
