package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged   bool
	NewLogLevel       LogLevel
	SessionChanged    bool
	NewSession        SessionConfig
	CurriculumChanged bool
	NewCurriculum     CurriculumConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; provider and
// archive changes require a restart and are ignored here.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session != new.Session {
		d.SessionChanged = true
		d.NewSession = new.Session
	}

	if old.Curriculum != new.Curriculum {
		d.CurriculumChanged = true
		d.NewCurriculum = new.Curriculum
	}

	return d
}
