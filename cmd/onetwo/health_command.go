package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const minHealthStaleness = 90 * time.Second

var errUnhealthy = errors.New("unhealthy")

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var healthFile string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the health file written by `onetwo serve` (exit 1 when unhealthy)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := strings.TrimSpace(healthFile)
			if path == "" {
				path = cfg.GetHealthFile()
			}
			maxAge := 3 * cfg.GetHealthInterval()
			if maxAge < minHealthStaleness {
				maxAge = minHealthStaleness
			}

			healthy, message := checkHealthWithFile(path, maxAge, time.Now())
			fmt.Fprintln(cmd.OutOrStdout(), message)
			if !healthy {
				return errUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&healthFile, "file", "", "Health file to read (default: health.file)")
	return cmd
}

// checkHealthWithFile checks the application health status by reading the specified health file
func checkHealthWithFile(healthFile string, maxAge time.Duration, now time.Time) (bool, string) {
	data, err := os.ReadFile(healthFile)
	if os.IsNotExist(err) {
		return false, fmt.Sprintf("UNHEALTHY: Health status file not found (%s)", healthFile)
	}
	if err != nil {
		return false, fmt.Sprintf("UNHEALTHY: Failed to read health file: %v", err)
	}

	var healthStatus map[string]interface{}
	if err := json.Unmarshal(data, &healthStatus); err != nil {
		return false, fmt.Sprintf("UNHEALTHY: Failed to parse health file: %v", err)
	}

	timestampStr, ok := healthStatus["health_check_timestamp"].(string)
	if !ok {
		return false, "UNHEALTHY: Health file missing timestamp"
	}
	timestamp, err := time.Parse(time.RFC3339, timestampStr)
	if err != nil {
		return false, fmt.Sprintf("UNHEALTHY: Invalid timestamp format: %v", err)
	}

	timeSinceUpdate := now.Sub(timestamp).Round(time.Second)
	if timeSinceUpdate > maxAge {
		return false, fmt.Sprintf("UNHEALTHY: Health file is stale (last update: %v ago)", timeSinceUpdate)
	}

	healthy, ok := healthStatus["healthy"].(bool)
	if !ok {
		return false, "UNHEALTHY: Health status missing healthy field"
	}
	if !healthy {
		return false, fmt.Sprintf("UNHEALTHY: Application reported unhealthy status\nHealth details: %s", string(data))
	}

	return true, fmt.Sprintf("HEALTHY: Application is functioning normally (last check: %v ago)", timeSinceUpdate)
}
