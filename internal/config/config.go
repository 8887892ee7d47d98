// Package config loads the daemon's INI-like configuration file, using
// gopkg.in/ini.v1 the way the rest of the retrieval pack reaches for an
// ecosystem library for this exact "key = value" / "#",";" comment
// syntax rather than hand-rolling a line parser.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Config is the parsed set of recognised keys. On SIGHUP the supervisor
// re-reads the file and applies PxeConfigDir, PxeConfigTemplate and
// MaxControlConnections. The log keys (LogFile, LogFormat, LogLevel) are
// applied only at start, and PIDFile requires a restart.
// BackendConfigDir, DispatchConfigFile, the UEFI template keys and
// MaxPxeConfigWriters are parsed and stored but not used by any component.
type Config struct {
	BackendConfigDir       string
	DispatchConfigFile     string
	PIDFile                string
	LogFile                string
	LogFormat              string
	LogLevel               int
	PxeConfigDir           string
	PxeConfigTemplate      string
	UEFINetbootTemplateX86 string
	UEFINetbootTemplateX64 string
	MaxControlConnections  int
	MaxPxeConfigWriters    int
}

// Default returns the configuration the daemon falls back to when no
// file is given or a key is absent.
func Default() Config {
	return Config{
		BackendConfigDir:       "/etc/opsi/backends",
		DispatchConfigFile:     "/etc/opsi/backendManager/dispatch.conf",
		PIDFile:                "/var/run/opsipxeconfd/opsipxeconfd.pid",
		LogFile:                "/var/log/opsi/opsipxeconfd.log",
		LogFormat:              "cli",
		LogLevel:               4,
		PxeConfigDir:           "/tftpboot/linux/pxelinux.cfg",
		PxeConfigTemplate:      "/tftpboot/linux/pxelinux.cfg/install",
		UEFINetbootTemplateX86: "",
		UEFINetbootTemplateX64: "",
		MaxControlConnections:  10,
		MaxPxeConfigWriters:    100,
	}
}

// Load reads path, starting from Default() and overriding any key
// present in the file. A missing file is not itself an error here;
// callers that require a file to exist should os.Stat before calling
// Load — Load only reports malformed content.
func Load(path string) (Config, error) {
	cfg := Default()

	file, err := ini.LoadSources(ini.LoadOptions{Loose: true, AllowBooleanKeys: true}, path)
	if err != nil {
		return Config{}, fmt.Errorf("load config file %s: %w", path, err)
	}

	section := file.Section("")

	setString(section, "backend config dir", &cfg.BackendConfigDir)
	setString(section, "dispatch config file", &cfg.DispatchConfigFile)
	setString(section, "pid file", &cfg.PIDFile)
	setString(section, "log file", &cfg.LogFile)
	setString(section, "log format", &cfg.LogFormat)
	setString(section, "pxe config dir", &cfg.PxeConfigDir)
	setString(section, "pxe config template", &cfg.PxeConfigTemplate)
	setString(section, "uefi netboot config template x86", &cfg.UEFINetbootTemplateX86)
	setString(section, "uefi netboot config template x64", &cfg.UEFINetbootTemplateX64)

	if err := setInt(section, "log level", &cfg.LogLevel); err != nil {
		return Config{}, err
	}
	if err := setInt(section, "max control connections", &cfg.MaxControlConnections); err != nil {
		return Config{}, err
	}
	if err := setInt(section, "max pxe config writers", &cfg.MaxPxeConfigWriters); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setString(section *ini.Section, key string, dst *string) {
	if section.HasKey(key) {
		*dst = section.Key(key).String()
	}
}

func setInt(section *ini.Section, key string, dst *int) error {
	if !section.HasKey(key) {
		return nil
	}
	v, err := section.Key(key).Int()
	if err != nil {
		return fmt.Errorf("config key %q: %w", key, err)
	}
	*dst = v
	return nil
}
