package system

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/host"
)

// HostInfo identifies the machine the supervisor runs on
type HostInfo struct {
	Hostname      string `json:"hostname"`
	OS            string `json:"os"`
	Platform      string `json:"platform"`
	KernelVersion string `json:"kernel_version"`
	KernelArch    string `json:"kernel_arch"`
	Uptime        string `json:"uptime"`
	AgentPID      int    `json:"agent_pid"`
	AgentUptime   string `json:"agent_uptime"`
}

var agentStarted = time.Now()

// GetHostInfo retrieves host information and how long the agent has been up
func GetHostInfo() (*HostInfo, error) {
	info, err := host.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to get host info: %w", err)
	}

	return &HostInfo{
		Hostname:      info.Hostname,
		OS:            info.OS,
		Platform:      info.Platform,
		KernelVersion: info.KernelVersion,
		KernelArch:    info.KernelArch,
		Uptime:        FormatUptime(time.Duration(info.Uptime) * time.Second),
		AgentPID:      os.Getpid(),
		AgentUptime:   FormatUptime(time.Since(agentStarted)),
	}, nil
}

// FormatUptime renders a duration as a short human readable string,
// keeping the two most significant units
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours%24)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
