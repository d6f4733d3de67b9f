package visualization

import (
	"fmt"
	"os/exec"
	"runtime"
)

// ChartURL returns the page URL for a server listening on addr.
func ChartURL(addr string) string {
	return "http://" + addr + "/"
}

// OpenBrowser opens url in the user's default browser without waiting for it.
func OpenBrowser(url string) error {
	cmd, err := browserCommand(runtime.GOOS, url)
	if err != nil {
		return err
	}
	return cmd.Start()
}

// browserCommand picks the opener for goos: xdg-open on Linux, open on
// macOS, cmd start on Windows.
func browserCommand(goos, url string) (*exec.Cmd, error) {
	switch goos {
	case "linux":
		return exec.Command("xdg-open", url), nil
	case "darwin":
		return exec.Command("open", url), nil
	case "windows":
		return exec.Command("cmd", "/c", "start", url), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
