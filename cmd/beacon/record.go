package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/beacon/pkg/config"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/cuemby/beacon/pkg/worker"
	"github.com/spf13/cobra"
)

var trackCmd = &cobra.Command{
	Use:   "track NAME",
	Short: "Record an event",
	Long: `Record a raised event into the local queue.

Examples:
  # Record an event with properties
  beacon track Purchase --prop Amount=12.5 --prop Currency=USD

  # Record the launch event, then upload right away
  beacon track --launch --flush`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		launch, _ := cmd.Flags().GetBool("launch")
		viewed, _ := cmd.Flags().GetBool("notification-viewed")
		props, err := propsFromFlags(cmd)
		if err != nil {
			return err
		}

		return withCollector(cmd, func(c *collector) *worker.Handle {
			switch {
			case launch:
				return c.coord.RecordAppLaunched()
			case viewed:
				return c.coord.PushNotificationViewed(props)
			case len(args) == 0:
				return nil
			default:
				return c.coord.RecordEvent(args[0], props)
			}
		})
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Push profile attributes",
	Long: `Push profile attributes. Values may be command objects such as
{"$incr": 1} or {"$add": ["a"]} when given with --json.

Examples:
  beacon profile --prop Name=Ada --prop Email=ada@example.com
  beacon profile --json '{"Score": {"$incr": 10}}'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		props, err := propsFromFlags(cmd)
		if err != nil {
			return err
		}
		basic, _ := cmd.Flags().GetBool("basic")

		return withCollector(cmd, func(c *collector) *worker.Handle {
			if basic {
				return c.coord.PushBasicProfile(props)
			}
			return c.coord.PushProfile(props)
		})
	},
}

var screenCmd = &cobra.Command{
	Use:   "screen NAME",
	Short: "Record a screen view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCollector(cmd, func(c *collector) *worker.Handle {
			return c.coord.RecordScreen(args[0])
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{trackCmd, profileCmd, screenCmd} {
		cmd.Flags().StringArrayP("prop", "p", nil, "Property as key=value (repeatable)")
		cmd.Flags().String("json", "", "Properties as a JSON object")
		cmd.Flags().Bool("flush", false, "Upload the queue after recording")
	}
	trackCmd.Flags().Bool("launch", false, "Record the launch event")
	trackCmd.Flags().Bool("notification-viewed", false, "Record a viewed notification")
	profileCmd.Flags().Bool("basic", false, "Decorate the patch with device facts")
}

// oneShot adapts cfg for a command that records and exits. The process
// outlives no deferral window, so events are never held back for a launch
// event that would arrive in a later process.
func oneShot(cfg *config.Config) *config.Config {
	run := *cfg
	run.CreatedPostAppLaunch = true
	return &run
}

// withCollector opens the pipeline, runs record and reports its outcome
func withCollector(cmd *cobra.Command, record func(c *collector) *worker.Handle) error {
	c, err := openCollector(oneShot(cfg))
	if err != nil {
		return err
	}
	defer c.Close()

	if h := record(c); h != nil {
		outcome, err := await(cmd.Context(), h)
		if err != nil {
			return err
		}
		printOutcome(outcome)
	}

	if flush, _ := cmd.Flags().GetBool("flush"); flush {
		sent, err := c.flushAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("✓ Uploaded %d events\n", sent)
	}
	return nil
}

func printOutcome(o types.Outcome) {
	switch o.State {
	case types.OutcomePersisted:
		fmt.Printf("✓ Queued (%s)\n", o.Group)
	case types.OutcomeDeferred:
		fmt.Println("Deferred until the launch event is recorded")
	default:
		fmt.Printf("Event %s\n", o.State)
	}
	for field, change := range o.Changes {
		fmt.Printf("  %s: %v -> %v\n", field, change.OldValue, change.NewValue)
	}
}

// propsFromFlags merges --json and --prop into one payload; --prop wins
func propsFromFlags(cmd *cobra.Command) (*types.Payload, error) {
	props := types.NewPayload()

	if raw, _ := cmd.Flags().GetString("json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), props); err != nil {
			return nil, fmt.Errorf("failed to parse --json: %w", err)
		}
	}

	pairs, _ := cmd.Flags().GetStringArray("prop")
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("property %q must be key=value", pair)
		}
		props.Set(key, parseScalar(value))
	}
	return props, nil
}

// parseScalar turns a flag value into a bool or number when it looks like one
func parseScalar(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
