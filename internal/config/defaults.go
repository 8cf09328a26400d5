package config

const (
	defaultConfigPath         = "~/.config/reqtrack/config.toml"
	defaultDataDir            = "~/.local/share/reqtrack"
	defaultLogDir             = "~/.local/share/reqtrack/logs"
	defaultAPIBind            = "127.0.0.1:8787"
	defaultLibraryClientName  = "reqtrack"
	defaultProviderKey        = "Tmdb"
	defaultSearchLimit        = 10
	maxSearchLimit            = 10
	defaultLibraryTimeout     = 10
	defaultPageSize           = 20
	defaultMaxPageSize        = 500
	defaultReconcileInterval  = 300
	defaultTransitionTimeout  = 10
	defaultJWTIssuer          = ""
	defaultNtfyTimeout        = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultReconcileEnabled   = true
	defaultReconcileOnStartup = false
)

func defaultMediaTypes() []string {
	return []string{"movie", "tv", "book"}
}

func defaultItemTypes() map[string]string {
	return map[string]string{
		"movie": "Movie",
		"tv":    "Series",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Library: Library{
			ClientName:     defaultLibraryClientName,
			ProviderKey:    defaultProviderKey,
			SearchLimit:    defaultSearchLimit,
			RequestTimeout: defaultLibraryTimeout,
			ItemTypes:      defaultItemTypes(),
		},
		Requests: Requests{
			MediaTypes:      defaultMediaTypes(),
			DefaultPageSize: defaultPageSize,
			MaxPageSize:     defaultMaxPageSize,
		},
		Reconcile: Reconcile{
			Enabled:           defaultReconcileEnabled,
			Interval:          defaultReconcileInterval,
			TransitionTimeout: defaultTransitionTimeout,
			RunOnStart:        defaultReconcileOnStartup,
		},
		Auth: Auth{
			JWTIssuer: defaultJWTIssuer,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
