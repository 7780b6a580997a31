package config

const (
	defaultDataDir           = "~/.termbackup"
	defaultLogDir            = "~/.termbackup/logs"
	defaultAPIURL            = "https://api.github.com"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultIntervalMinutes   = 60
	defaultErrorRetryMinutes = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		GitHub: GitHub{
			APIURL: defaultAPIURL,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Audit: Audit{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Daemon: Daemon{
			IntervalMinutes:   defaultIntervalMinutes,
			ErrorRetryMinutes: defaultErrorRetryMinutes,
		},
	}
}
