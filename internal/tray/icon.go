package tray

import (
	_ "embed"
	"runtime"
)

// icon.ico has a single PNG-encoded entry after the 22-byte directory.
//
//go:embed icon.ico
var iconData []byte

const icoHeaderSize = 22

// GetIcon returns the tray icon in the format the platform tray expects:
// ICO on Windows, PNG elsewhere.
func GetIcon() []byte {
	return iconFor(runtime.GOOS)
}

func iconFor(goos string) []byte {
	if goos == "windows" || len(iconData) <= icoHeaderSize {
		return iconData
	}
	return iconData[icoHeaderSize:]
}
