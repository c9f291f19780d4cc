package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects device resolutions, external services, and feature
// flags, then emits a single structured zerolog event summarising how the
// camera came up. When a unit misbehaves in the field this one line says
// which backends it is actually running on.
type StartupLogger struct {
	name         string
	version      string
	initDuration time.Duration

	devices  map[string]string
	services map[string]string
	paths    map[string]string
	features map[string]bool
	config   map[string]string
}

// NewStartupLogger creates a StartupLogger for the given binary name.
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		devices:  make(map[string]string),
		services: make(map[string]string),
		paths:    make(map[string]string),
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// Version sets the build version baked into the binary.
func (s *StartupLogger) Version(v string) *StartupLogger {
	s.version = v
	return s
}

// Device registers the backend a device class resolved to.
func (s *StartupLogger) Device(class, backend string) *StartupLogger {
	s.devices[class] = backend
	return s
}

// Service registers an external text service and the backend serving it.
// Only the backend name is logged, never the credential.
func (s *StartupLogger) Service(label, backend string) *StartupLogger {
	s.services[label] = backend
	return s
}

// Path registers a filesystem location the process writes to.
func (s *StartupLogger) Path(label, path string) *StartupLogger {
	s.paths[label] = path
	return s
}

// Feature registers a boolean feature flag (e.g. "s3Mirror", "statusServer").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long startup took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// Log emits a single structured INFO log event with all collected information.
func (s *StartupLogger) Log() {
	s.Event(log.Info()).Msg("Poetry camera startup complete")
}

// Event attaches the collected fields to evt without sending it.
func (s *StartupLogger) Event(evt *zerolog.Event) *zerolog.Event {
	host, _ := os.Hostname()
	proc := zerolog.Dict().
		Str("name", s.name).
		Str("host", host).
		Int("pid", os.Getpid()).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", zerolog.GlobalLevel().String())
	if s.version != "" {
		proc = proc.Str("version", s.version)
	}
	evt = evt.Dict("process", proc)

	if len(s.devices) > 0 {
		evt = evt.Dict("devices", dictFromMap(s.devices))
	}
	if len(s.services) > 0 {
		evt = evt.Dict("services", dictFromMap(s.services))
	}
	if len(s.paths) > 0 {
		evt = evt.Dict("paths", dictFromMap(s.paths))
	}

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}

	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}
	return evt
}

// dictFromMap converts a map[string]string into a zerolog.Event (Dict).
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
