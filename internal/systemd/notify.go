package systemd

import (
	"context"
	"log"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier reports agent state to systemd. Outside a Type=notify unit every
// call is a no-op.
type Notifier struct {
	// status renders the STATUS= line sent with each watchdog ping
	status func() string
}

// NewNotifier creates a notifier. status may be nil.
func NewNotifier(status func() string) *Notifier {
	return &Notifier{status: status}
}

// Ready signals that the agent is serving requests
func (n *Notifier) Ready() bool {
	return n.send(daemon.SdNotifyReady)
}

// Stopping signals that a graceful shutdown has begun
func (n *Notifier) Stopping() bool {
	return n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status
func (n *Notifier) Status(msg string) bool {
	return n.send("STATUS=" + msg)
}

func (n *Notifier) send(state string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Printf("[systemd] notify %q failed: %v", state, err)
	}
	return sent
}

// Watchdog pings the systemd watchdog at half its interval until ctx is
// done. It returns immediately when no watchdog is configured.
func (n *Notifier) Watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Printf("[systemd] watchdog: %v", err)
		return
	}
	if interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
			if n.status != nil {
				n.Status(n.status())
			}
		case <-ctx.Done():
			return
		}
	}
}
