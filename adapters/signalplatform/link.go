package signalplatform

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/events"
	"github.com/skip2/go-qrcode"
)

// LinkDevice runs `signal-cli link`, renders the returned linking URI
// as a terminal QR code, and blocks until the user scans it (signal-cli
// exits 0) or ctx is cancelled. It is meant to be run once, out of
// band, before AccountNumber is known -- the resulting registration is
// then picked up by a subsequent jsonRpc-mode Adapter.Run against the
// same signal-cli data directory.
func LinkDevice(ctx context.Context, cfg config.SignalConfig, logger *slog.Logger, bus *events.Bus) error {
	if logger == nil {
		logger = slog.Default()
	}

	deviceName := cfg.LinkDeviceName
	if deviceName == "" {
		deviceName = "canoe-go"
	}

	cmd := exec.CommandContext(ctx, cfg.SignalCLIPath, "link", "-n", deviceName)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("signalplatform: link: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("signalplatform: link: start: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	var uri string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		uri = line
		break
	}
	if uri == "" {
		_ = cmd.Wait()
		return fmt.Errorf("signalplatform: link: signal-cli produced no linking URI")
	}

	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("signalplatform: link: render QR: %w", err)
	}

	logger.Info("scan this QR code with Signal (Linked Devices -> Link New Device)",
		"device_name", deviceName, "uri", uri)
	fmt.Println(qr.ToSmallString(false))

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return ctx.Err()
	case err := <-waitErr:
		if err != nil {
			return fmt.Errorf("signalplatform: link: signal-cli exited with error: %w", err)
		}
	}

	bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceSignal,
		Kind:      events.KindDeviceLinked,
		Data:      map[string]any{"device_name": deviceName},
	})
	return nil
}
