// Package tray runs the system tray icon with enable, status page and exit
// entries.
package tray

import (
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"

	"fyne.io/systray"
)

// ShutdownFunc is called when "Exit" is clicked
type ShutdownFunc func()

// Switch is the actuation on/off control driven by the tray.
type Switch interface {
	Enabled() bool
	SetEnabled(enabled bool)
}

// Tray manages the system tray icon and menu
type Tray struct {
	logger       *slog.Logger
	sw           Switch
	url          string
	shutdownFunc ShutdownFunc
	once         sync.Once
	shuttingDown atomic.Bool
	menuEnabled  *systray.MenuItem
	menuOpen     *systray.MenuItem
	menuExit     *systray.MenuItem
}

// New creates a new Tray instance. An empty url hides the status page entry.
func New(sw Switch, url string, shutdownFn ShutdownFunc, logger *slog.Logger) *Tray {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tray{
		logger:       logger.With("component", "tray"),
		sw:           sw,
		url:          url,
		shutdownFunc: shutdownFn,
	}
}

// Run initializes and runs the system tray (blocks until Quit())
func (t *Tray) Run(iconData []byte) {
	systray.Run(func() {
		t.onReady(iconData)
	}, func() {
		t.onExit()
	})
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	t.shuttingDown.Store(true)
	systray.Quit()
}

// onReady is called when the tray is ready
func (t *Tray) onReady(iconData []byte) {
	if iconData != nil {
		systray.SetIcon(iconData)
	}
	systray.SetTitle("padmouse")
	systray.SetTooltip(tooltip(t.sw.Enabled(), t.url))

	t.menuEnabled = systray.AddMenuItemCheckbox("Enabled", "Move the pointer with the controller", t.sw.Enabled())
	if t.url != "" {
		t.menuOpen = systray.AddMenuItem("Open Status Page", "Open web interface")
	}
	systray.AddSeparator()
	t.menuExit = systray.AddMenuItem("Exit", "Quit application")

	// Handle menu clicks in separate goroutines to prevent blocking
	go t.handleMenuClicks()

	t.logger.Info("system tray initialized")
}

// handleMenuClicks processes menu item clicks without blocking
func (t *Tray) handleMenuClicks() {
	var openCh chan struct{}
	if t.menuOpen != nil {
		openCh = t.menuOpen.ClickedCh
	}

	for {
		select {
		case <-t.menuEnabled.ClickedCh:
			enabled := !t.sw.Enabled()
			t.sw.SetEnabled(enabled)
			t.Reflect(enabled)
		case <-openCh:
			if !t.shuttingDown.Load() {
				t.openBrowser()
			}
		case <-t.menuExit.ClickedCh:
			if t.shuttingDown.CompareAndSwap(false, true) {
				t.once.Do(t.shutdownFunc)
				systray.Quit()
				return
			}
		}
	}
}

// Reflect updates the menu to an enable state changed elsewhere.
func (t *Tray) Reflect(enabled bool) {
	if t.menuEnabled == nil || t.shuttingDown.Load() {
		return
	}
	if enabled {
		t.menuEnabled.Check()
	} else {
		t.menuEnabled.Uncheck()
	}
	systray.SetTooltip(tooltip(enabled, t.url))
}

// onExit is called when the tray is exiting
func (t *Tray) onExit() {
	t.shuttingDown.Store(true)
	t.logger.Info("system tray exiting")
}

// openBrowser opens the default web browser
func (t *Tray) openBrowser() {
	// Prevent multiple browser launches during shutdown
	if t.shuttingDown.Load() {
		return
	}

	cmd := browserCommand(runtime.GOOS, t.url)
	if err := cmd.Start(); err != nil {
		t.logger.Warn("failed to open browser", "url", t.url, "error", err)
	}
}

func browserCommand(goos, url string) *exec.Cmd {
	switch goos {
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		return exec.Command("open", url)
	default:
		return exec.Command("xdg-open", url)
	}
}

func tooltip(enabled bool, url string) string {
	s := "padmouse - "
	if enabled {
		s += "enabled"
	} else {
		s += "disabled"
	}
	if url != "" {
		s += " - " + url
	}
	return s
}
