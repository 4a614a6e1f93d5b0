// Package secrets resolves sensitive configuration values from Doppler
package secrets

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Source resolves a secret by key
type Source interface {
	GetSecretWithFallback(key, fallback string) string
}

// EnvSource reads secrets straight from the environment
type EnvSource struct{}

// GetSecretWithFallback returns the environment value for key, or fallback
func (EnvSource) GetSecretWithFallback(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// DopplerClient provides access to secrets stored in Doppler
type DopplerClient struct {
	Project     string
	Config      string
	initialized bool
	lookPath    func(string) (string, error)
	run         func(name string, args ...string) ([]byte, error)
}

// NewDopplerClient creates a new Doppler client
func NewDopplerClient(project, config string) *DopplerClient {
	return &DopplerClient{
		Project:  project,
		Config:   config,
		lookPath: exec.LookPath,
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		},
	}
}

// Initialize checks if Doppler CLI is installed
func (d *DopplerClient) Initialize() error {
	if _, err := d.lookPath("doppler"); err != nil {
		return fmt.Errorf("doppler CLI not found: %w", err)
	}
	d.initialized = true
	return nil
}

// GetSecret retrieves a secret from the environment (as set by `doppler run`)
// or from the Doppler CLI
func (d *DopplerClient) GetSecret(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	if !d.initialized {
		if err := d.Initialize(); err != nil {
			return "", err
		}
	}

	output, err := d.run("doppler", "secrets", "get", key,
		"--project", d.Project,
		"--config", d.Config,
		"--plain")
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}

	return strings.TrimSpace(string(output)), nil
}

// GetSecretWithFallback gets a secret from Doppler with a fallback value
func (d *DopplerClient) GetSecretWithFallback(key, fallback string) string {
	value, err := d.GetSecret(key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}
