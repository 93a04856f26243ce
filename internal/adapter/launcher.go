package adapter

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
)

// Launcher hands server connect links (steam://connect/host:port) to the
// game client
type Launcher struct {
	command string   // configured client command, empty for system default
	args    []string // additional arguments for the client
	logger  *slog.Logger

	// start runs the command without waiting for it; replaced in tests
	start func(name string, args ...string) error
}

// NewLauncher creates a launcher. An empty command uses the system URL handler.
func NewLauncher(command string, args []string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		command: command,
		args:    args,
		logger:  logger,
		start:   startCommand,
	}
}

func startCommand(name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return err
	}
	return exec.Command(name, args...).Start() // Start async, don't wait
}

// Launch opens a connect link in the configured client or system default
func (l *Launcher) Launch(link string) error {
	if link == "" {
		return fmt.Errorf("no connect address for this server")
	}

	if l.command != "" {
		args := append(append([]string{}, l.args...), l.connectArgs(link)...)
		l.logger.Info("launching configured client", "command", l.command, "args", args)
		return l.start(l.command, args...)
	}

	name, args := defaultOpener(runtime.GOOS, link)
	l.logger.Info("launching with system default", "os", runtime.GOOS, "url", link)
	return l.start(name, args...)
}

// connectArgs adapts the link to the configured client. The steam binary takes
// the URL as is; a bare game executable takes "+connect host:port".
func (l *Launcher) connectArgs(link string) []string {
	if strings.Contains(strings.ToLower(l.command), "steam") {
		return []string{link}
	}
	return []string{"+connect", strings.TrimPrefix(link, "steam://connect/")}
}

// defaultOpener returns the command opening a URL with the system handler
func defaultOpener(goos, link string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{link}
	case "windows":
		return "cmd", []string{"/c", "start", "", link}
	default:
		// Linux and other Unix-like systems
		return "xdg-open", []string{link}
	}
}
