package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; changes to the
// live or audio sections require a restart and are reported as such.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VideoChanged is true if any video sampling setting changed. The next
	// StartVideo picks up the new values; a running sampler is not touched.
	VideoChanged bool

	// RestartRequired is true if the live or audio sections changed.
	// These are bound at session start and cannot be swapped under a
	// running session.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Video != new.Video {
		d.VideoChanged = true
	}

	if old.Live != new.Live || old.Audio != new.Audio {
		d.RestartRequired = true
	}

	return d
}
