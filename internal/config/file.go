package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// File keys.
const (
	KeyMouseSensitivity     = "mouse_sensitivity"
	KeyScrollSensitivity    = "scroll_sensitivity"
	KeyDeadZone             = "dead_zone"
	KeyMouseAcceleration    = "mouse_acceleration"
	KeyInvertX              = "invert_x_axis"
	KeyInvertY              = "invert_y_axis"
	KeyUseLeftStick         = "use_left_stick_for_mouse"
	KeyLeftClick            = "left_click_button"
	KeyRightClick           = "right_click_button"
	KeyMiddleClick          = "middle_click_button"
	KeyDoubleClick          = "double_click_button"
	KeyPrecisionMode        = "precision_mode_button"
	KeyTurboMode            = "turbo_mode_button"
	KeyPrecisionMultiplier  = "precision_multiplier"
	KeyTurboMultiplier      = "turbo_multiplier"
	KeyDoubleClickWindow    = "double_click_window"
	KeyDebounce             = "debounce"
	appDirName              = "padmouse"
	defaultConfigFileName   = "config.toml"
	defaultConfigFileFormat = "toml"
)

// DefaultPath returns the per-user settings file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, appDirName, defaultConfigFileName), nil
}

// Load reads the settings file at path. A missing file yields Default with
// no error. Unknown button names disable the binding and are logged once
// here, so the engine never sees them.
func Load(path string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := newViper(path)
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			logger.Info("no settings file, using defaults", "path", path)
			return Default(), nil
		}
		return Default(), fmt.Errorf("read settings %s: %w", path, err)
	}

	cfg := Config{
		MouseSensitivity:     v.GetFloat64(KeyMouseSensitivity),
		ScrollSensitivity:    v.GetFloat64(KeyScrollSensitivity),
		DeadZone:             v.GetFloat64(KeyDeadZone),
		MouseAcceleration:    v.GetFloat64(KeyMouseAcceleration),
		InvertXAxis:          v.GetBool(KeyInvertX),
		InvertYAxis:          v.GetBool(KeyInvertY),
		UseLeftStickForMouse: v.GetBool(KeyUseLeftStick),
		PrecisionMultiplier:  v.GetFloat64(KeyPrecisionMultiplier),
		TurboMultiplier:      v.GetFloat64(KeyTurboMultiplier),
		DoubleClickWindow:    v.GetDuration(KeyDoubleClickWindow),
		Debounce:             v.GetDuration(KeyDebounce),
	}
	for key, dst := range map[string]*Button{
		KeyLeftClick:     &cfg.LeftClickButton,
		KeyRightClick:    &cfg.RightClickButton,
		KeyMiddleClick:   &cfg.MiddleClickButton,
		KeyDoubleClick:   &cfg.DoubleClickButton,
		KeyPrecisionMode: &cfg.PrecisionModeButton,
		KeyTurboMode:     &cfg.TurboModeButton,
	} {
		name := v.GetString(key)
		b, ok := ParseButton(name)
		if !ok {
			logger.Warn("unknown button name, binding disabled", "key", key, "value", name)
		}
		*dst = b
	}

	logger.Info("settings loaded", "path", v.ConfigFileUsed())
	return cfg.Sanitize(), nil
}

// Save writes cfg to path, creating the parent directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	v := newViper(path)
	cfg = cfg.Sanitize()
	v.Set(KeyMouseSensitivity, cfg.MouseSensitivity)
	v.Set(KeyScrollSensitivity, cfg.ScrollSensitivity)
	v.Set(KeyDeadZone, cfg.DeadZone)
	v.Set(KeyMouseAcceleration, cfg.MouseAcceleration)
	v.Set(KeyInvertX, cfg.InvertXAxis)
	v.Set(KeyInvertY, cfg.InvertYAxis)
	v.Set(KeyUseLeftStick, cfg.UseLeftStickForMouse)
	for _, b := range cfg.Bindings() {
		v.Set(b.Key, b.Button.String())
	}
	v.Set(KeyPrecisionMultiplier, cfg.PrecisionMultiplier)
	v.Set(KeyTurboMultiplier, cfg.TurboMultiplier)
	v.Set(KeyDoubleClickWindow, cfg.DoubleClickWindow.String())
	v.Set(KeyDebounce, cfg.Debounce.String())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType(defaultConfigFileFormat)
	}
	return v
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault(KeyMouseSensitivity, d.MouseSensitivity)
	v.SetDefault(KeyScrollSensitivity, d.ScrollSensitivity)
	v.SetDefault(KeyDeadZone, d.DeadZone)
	v.SetDefault(KeyMouseAcceleration, d.MouseAcceleration)
	v.SetDefault(KeyInvertX, d.InvertXAxis)
	v.SetDefault(KeyInvertY, d.InvertYAxis)
	v.SetDefault(KeyUseLeftStick, d.UseLeftStickForMouse)
	for _, b := range d.Bindings() {
		v.SetDefault(b.Key, b.Button.String())
	}
	v.SetDefault(KeyPrecisionMultiplier, d.PrecisionMultiplier)
	v.SetDefault(KeyTurboMultiplier, d.TurboMultiplier)
	v.SetDefault(KeyDoubleClickWindow, d.DoubleClickWindow.String())
	v.SetDefault(KeyDebounce, d.Debounce.String())
}
