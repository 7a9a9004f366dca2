package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"retriever/internal/api"
	"retriever/internal/config"
)

type commandContext struct {
	configFlag string
	apiFlag    string
	jsonOutput bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = configError{err: err}
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// client builds an API client for the daemon named by --api or api.bind.
func (c *commandContext) client() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	bind := strings.TrimSpace(c.apiFlag)
	if bind == "" {
		bind = cfg.API.Bind
	}
	client, err := api.NewClient(bind, api.WithToken(cfg.API.Token))
	if err != nil {
		return nil, configError{err: err}
	}
	return client, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
