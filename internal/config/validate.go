package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLibrary(); err != nil {
		return err
	}
	if err := c.validateRequests(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if c.Library.URL != "" {
		parsed, err := url.Parse(c.Library.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("library.url %q must be an absolute http(s) URL", c.Library.URL)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("library.url %q must use http or https", c.Library.URL)
		}
	}
	if c.Library.SearchLimit > maxSearchLimit {
		return fmt.Errorf("library.search_limit must be between 1 and %d", maxSearchLimit)
	}
	for mediaType := range c.Library.ItemTypes {
		if !c.MediaTypeSupported(mediaType) {
			return fmt.Errorf("library.item_types: %q is not listed in requests.media_types", mediaType)
		}
	}
	return nil
}

func (c *Config) validateRequests() error {
	for _, mt := range c.Requests.MediaTypes {
		if strings.ContainsAny(mt, " \t,") {
			return fmt.Errorf("requests.media_types: %q must be a single token", mt)
		}
	}
	return nil
}

func (c *Config) validateReconcile() error {
	if !c.Reconcile.Enabled {
		return nil
	}
	if c.Library.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("library.url is required when reconcile.enabled is true. Set JELLYFIN_URL or edit %s (create with 'reqtrack config init')", defaultPath)
	}
	if c.Reconcile.TransitionTimeout > c.Reconcile.Interval {
		return errors.New("reconcile.transition_timeout must not exceed reconcile.interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyTopic)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic %q must be a full topic URL", c.Notifications.NtfyTopic)
	}
	return nil
}
