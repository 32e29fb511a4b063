//go:build !linux && !windows && !darwin

package actuator

// NewPlatform reports that this OS has no injection backend.
func NewPlatform(string) (Actuator, error) {
	return nil, ErrUnsupported
}
