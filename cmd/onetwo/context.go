package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"onetwotranscript/internal/config"
	"onetwotranscript/internal/logger"
)

type commandContext struct {
	configFlag *string
	debugFlag  *bool

	configOnce sync.Once
	config     *config.Configuration
	configErr  error

	loggerOnce sync.Once
	logger     *zap.Logger
}

func newCommandContext(configFlag *string, debugFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		debugFlag:  debugFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Configuration, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if c.debugFlag != nil && *c.debugFlag {
			cfg.SetDebugMode(true)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// zapLogger returns the process logger, built once from the debug setting
func (c *commandContext) zapLogger() *zap.Logger {
	c.loggerOnce.Do(func() {
		debug := c.config != nil && c.config.GetDebugMode()
		l, err := logger.NewLoggerForMode(debug)
		if err != nil {
			l = zap.NewNop()
		}
		c.logger = l
	})
	return c.logger
}

func (c *commandContext) close() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
