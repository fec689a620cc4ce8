// Package browser opens web pages with the platform's default handler.
package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// Opener opens a URL for the user. The TUI and CLI take one so tests can
// record instead of launching a browser.
type Opener interface {
	Open(rawURL string) error
}

// System opens URLs with open, xdg-open or rundll32.
type System struct{}

func (System) Open(rawURL string) error {
	cmd, args, err := command(runtime.GOOS, rawURL)
	if err != nil {
		return err
	}
	return exec.Command(cmd, args...).Start()
}

func command(goos, rawURL string) (string, []string, error) {
	if err := Check(rawURL); err != nil {
		return "", nil, err
	}
	switch goos {
	case "darwin":
		return "open", []string{rawURL}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{rawURL}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", rawURL}, nil
	}
	return "", nil, fmt.Errorf("unsupported platform %s", goos)
}

// Check refuses anything but absolute http(s) URLs so a crafted value
// cannot reach the shell opener as a file path or option.
func Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("refusing to open non-HTTP URL: %s", rawURL)
	}
	return nil
}
