package domain

// Config represents the minimal Floww configuration loaded from floww.yaml.
type Config struct {
	Masking  MaskingConfig
	Defaults DefaultsConfig
	Paths    PathsConfig
}

type MaskingConfig struct {
	Enabled bool
}

type DefaultsConfig struct {
	Environment string
}

type PathsConfig struct {
	PipelinesDir    string
	EnvironmentsDir string
	RunsDir         string
}

// DefaultConfig provides sane defaults if floww.yaml is partially missing.
func DefaultConfig() Config {
	return Config{
		Masking: MaskingConfig{Enabled: true},
		Defaults: DefaultsConfig{
			Environment: "ci",
		},
		Paths: PathsConfig{
			PipelinesDir:    "pipelines",
			EnvironmentsDir: "env",
			RunsDir:         "runs",
		},
	}
}
