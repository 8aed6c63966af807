package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/test-kitchen/kitchen-ec2-sub001/internal/client"
	"github.com/test-kitchen/kitchen-ec2-sub001/internal/config"
	"github.com/test-kitchen/kitchen-ec2-sub001/internal/driver"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision the instance described by the configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDriver(cmd.Context(), func(ctx context.Context, d *driver.Driver, state *driver.State) error {
			return d.Create(ctx, state)
		})
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Tear down the instance and everything created for it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDriver(cmd.Context(), func(ctx context.Context, d *driver.Driver, state *driver.State) error {
			return d.Destroy(ctx, state)
		})
	},
}

// withDriver loads configuration and state, runs one lifecycle action, and
// persists the state file afterwards. The state is written even when the
// action failed: partially provisioned resources recorded there are what a
// later destroy cleans up.
func withDriver(ctx context.Context, fn func(context.Context, *driver.Driver, *driver.State) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	api, err := client.NewEC2(ctx,
		client.WithRegion(cfg.Region),
		client.WithProfile(cfg.Profile),
	)
	if err != nil {
		return err
	}

	state, err := readState(statePath)
	if err != nil {
		return err
	}

	runErr := fn(ctx, driver.New(api, cfg), state)
	if werr := writeState(statePath, state); werr != nil {
		clog.FromContext(ctx).Error("failed to persist state file", "path", statePath, "error", werr)
		return errors.Join(runErr, werr)
	}
	return runErr
}

func readState(path string) (*driver.State, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &driver.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}
	state := &driver.State{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return state, nil
}

func writeState(path string, state *driver.State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o600)
}
