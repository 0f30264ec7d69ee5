package main

import (
	"fmt"
	"os"

	"github.com/cuemby/beacon/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var flushCmd = &cobra.Command{
	Use:   "flush [GROUP...]",
	Short: "Upload queued events now",
	Long: `Upload queued events to the collector without waiting for the flush window.

GROUP is one of regular, push_viewed or variables. With no GROUP every group
is flushed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, err := parseGroups(args)
		if err != nil {
			return err
		}

		c, err := openCollector(cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		if c.syncer == nil {
			return fmt.Errorf("no endpoint configured")
		}

		for _, group := range groups {
			result := c.coord.FlushSync(cmd.Context(), group)
			if result.Err != nil {
				return fmt.Errorf("failed to flush %s: %w", group, result.Err)
			}
			fmt.Printf("✓ %s: uploaded %d events\n", group, result.Sent)
		}
		return nil
	},
}

func parseGroups(args []string) ([]types.EventGroup, error) {
	if len(args) == 0 {
		return types.AllGroups, nil
	}
	groups := make([]types.EventGroup, 0, len(args))
	for _, arg := range args {
		g := types.EventGroup(arg)
		switch g {
		case types.GroupRegular, types.GroupPushViewed, types.GroupVariables:
			groups = append(groups, g)
		default:
			return nil, fmt.Errorf("unknown group %q", arg)
		}
	}
	return groups, nil
}

// snapshot is the inspect report
type snapshot struct {
	DeviceID  string                `yaml:"device_id"`
	DataDir   string                `yaml:"data_dir"`
	Endpoint  string                `yaml:"endpoint,omitempty"`
	Queue     map[string]int        `yaml:"queue"`
	Profile   map[string]any        `yaml:"profile,omitempty"`
	History   []*types.EventHistory `yaml:"history,omitempty"`
	Failures  int                   `yaml:"consecutive_failures,omitempty"`
	NextFlush string                `yaml:"next_flush_in,omitempty"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the local queue, profile and event history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCollector(cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		snap := snapshot{
			DeviceID: c.device.DeviceID(),
			DataDir:  cfg.DataDir,
			Endpoint: cfg.Endpoint,
			Queue:    make(map[string]int, len(types.AllGroups)),
			Profile:  c.profile.Snapshot(),
		}
		for _, group := range types.AllGroups {
			n, err := c.store.Count(group)
			if err != nil {
				return err
			}
			snap.Queue[string(group)] = n
		}
		if snap.History, err = c.history.List(); err != nil {
			return err
		}
		if c.syncer != nil {
			snap.Failures = c.syncer.Failures()
			snap.NextFlush = c.syncer.RecommendedDelay().String()
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(snap)
	},
}
