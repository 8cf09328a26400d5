package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLibrary()
	c.normalizeRequests()
	c.normalizeReconcile()
	c.normalizeAuth()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeLibrary() {
	c.Library.URL = strings.TrimRight(strings.TrimSpace(c.Library.URL), "/")
	if c.Library.URL == "" {
		if value, ok := os.LookupEnv("JELLYFIN_URL"); ok {
			c.Library.URL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Library.ClientName = strings.TrimSpace(c.Library.ClientName)
	if c.Library.ClientName == "" {
		c.Library.ClientName = defaultLibraryClientName
	}
	c.Library.DeviceID = strings.TrimSpace(c.Library.DeviceID)
	if c.Library.DeviceID == "" {
		c.Library.DeviceID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("reqtrack:"+c.Paths.DataDir)).String()
	}
	c.Library.ProviderKey = strings.TrimSpace(c.Library.ProviderKey)
	if c.Library.ProviderKey == "" {
		c.Library.ProviderKey = defaultProviderKey
	}
	if c.Library.SearchLimit <= 0 {
		c.Library.SearchLimit = defaultSearchLimit
	}
	if c.Library.RequestTimeout <= 0 {
		c.Library.RequestTimeout = defaultLibraryTimeout
	}
	if len(c.Library.ItemTypes) == 0 {
		c.Library.ItemTypes = defaultItemTypes()
		return
	}
	itemTypes := make(map[string]string, len(c.Library.ItemTypes))
	for mediaType, itemType := range c.Library.ItemTypes {
		key := strings.ToLower(strings.TrimSpace(mediaType))
		value := strings.TrimSpace(itemType)
		if key == "" || value == "" {
			continue
		}
		itemTypes[key] = value
	}
	c.Library.ItemTypes = itemTypes
}

func (c *Config) normalizeRequests() {
	if len(c.Requests.MediaTypes) == 0 {
		c.Requests.MediaTypes = defaultMediaTypes()
	} else {
		types := make([]string, 0, len(c.Requests.MediaTypes))
		seen := make(map[string]struct{}, len(c.Requests.MediaTypes))
		for _, mt := range c.Requests.MediaTypes {
			normalized := strings.ToLower(strings.TrimSpace(mt))
			if normalized == "" {
				continue
			}
			if _, exists := seen[normalized]; exists {
				continue
			}
			seen[normalized] = struct{}{}
			types = append(types, normalized)
		}
		if len(types) == 0 {
			types = defaultMediaTypes()
		}
		c.Requests.MediaTypes = types
	}
	if c.Requests.MaxPageSize <= 0 {
		c.Requests.MaxPageSize = defaultMaxPageSize
	}
	if c.Requests.DefaultPageSize <= 0 {
		c.Requests.DefaultPageSize = defaultPageSize
	}
	if c.Requests.DefaultPageSize > c.Requests.MaxPageSize {
		c.Requests.DefaultPageSize = c.Requests.MaxPageSize
	}
}

func (c *Config) normalizeReconcile() {
	if c.Reconcile.Interval <= 0 {
		c.Reconcile.Interval = defaultReconcileInterval
	}
	if c.Reconcile.TransitionTimeout <= 0 {
		c.Reconcile.TransitionTimeout = defaultTransitionTimeout
	}
}

func (c *Config) normalizeAuth() {
	c.Auth.JWTSecret = strings.TrimSpace(c.Auth.JWTSecret)
	if c.Auth.JWTSecret == "" {
		if value, ok := os.LookupEnv("REQTRACK_JWT_SECRET"); ok {
			c.Auth.JWTSecret = strings.TrimSpace(value)
		}
	}
	c.Auth.JWTIssuer = strings.TrimSpace(c.Auth.JWTIssuer)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
