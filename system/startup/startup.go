package startup

import (
	"fmt"
	"os"
	"strings"

	"github.com/thatsimonsguy/physense-bridge/internal/config"
)

// ServiceUnit renders a systemd unit that runs the bridge with cfg's endpoints.
func ServiceUnit(cfg config.Config, binary string) string {
	args := []string{
		binary,
		fmt.Sprintf("-host %s", cfg.Host),
		fmt.Sprintf("-receive-port %d", cfg.ReceivePort),
		fmt.Sprintf("-remote-host %s", cfg.RemoteHost),
		fmt.Sprintf("-send-port %d", cfg.SendPort),
		fmt.Sprintf("-api-port %d", cfg.APIPort),
		fmt.Sprintf("-log-level %s", cfg.Level),
	}
	if cfg.ConfigFile != "" {
		args = append(args, fmt.Sprintf("-config-file %s", cfg.ConfigFile))
	}
	if cfg.DBPath != "" {
		args = append(args, fmt.Sprintf("-db %s", cfg.DBPath), fmt.Sprintf("-journal-keep %d", cfg.JournalKeep))
	}

	return fmt.Sprintf(`[Unit]
Description=Physical programming simulator UDP bridge
After=network.target

[Service]
Type=simple
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, strings.Join(args, " "))
}

// InstallService writes the unit file to cfg.ServiceUnitPath.
func InstallService(cfg config.Config, binary string) error {
	if err := os.WriteFile(cfg.ServiceUnitPath, []byte(ServiceUnit(cfg, binary)), 0644); err != nil {
		return fmt.Errorf("write service unit: %w", err)
	}
	return nil
}
