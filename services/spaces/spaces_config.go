package spaces

import (
	"fmt"
	"log"
	"os"
	"sync"
)

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigErr  error
)

// GetGlobalConfig returns the Spaces configuration from the environment.
// Safe to call multiple times - it will only initialize once.
func GetGlobalConfig() (*Config, error) {
	globalConfigOnce.Do(func() {
		globalConfig, globalConfigErr = initGlobalConfig()
	})
	return globalConfig, globalConfigErr
}

// initGlobalConfig initializes the Spaces configuration
func initGlobalConfig() (*Config, error) {
	config := &Config{
		AccessKey: os.Getenv("DO_SPACES_ACCESS_KEY"),
		SecretKey: os.Getenv("DO_SPACES_SECRET_KEY"),
		Bucket:    os.Getenv("DO_SPACES_BUCKET"),
		Region:    os.Getenv("DO_SPACES_REGION"),
		Endpoint:  os.Getenv("DO_SPACES_ENDPOINT"),
		CDNURL:    os.Getenv("DO_SPACES_CDN_ENDPOINT"),
	}

	// Bucket and region are required
	if config.Bucket == "" || config.Region == "" {
		return nil, fmt.Errorf("DO_SPACES_BUCKET and DO_SPACES_REGION must be configured")
	}

	if config.AccessKey == "" || config.SecretKey == "" {
		return nil, fmt.Errorf("DO_SPACES_ACCESS_KEY and DO_SPACES_SECRET_KEY must be configured")
	}

	// Default endpoint (without https:// prefix for URL construction)
	if config.Endpoint == "" {
		config.Endpoint = fmt.Sprintf("%s.digitaloceanspaces.com", config.Region)
	}

	config.Initialized = true
	log.Println("Spaces: Using configured access keys")
	return config, nil
}

// IsConfigured returns true if Spaces is properly configured
func (c *Config) IsConfigured() bool {
	return c != nil && c.Initialized && c.AccessKey != "" && c.SecretKey != ""
}

// NewClientFromGlobalConfig creates a Client from the global config
func NewClientFromGlobalConfig() (*Client, error) {
	config, err := GetGlobalConfig()
	if err != nil {
		return nil, err
	}

	if !config.IsConfigured() {
		return nil, fmt.Errorf("Spaces is not properly configured")
	}

	return NewClient(*config)
}
