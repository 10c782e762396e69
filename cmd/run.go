// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
	"github.com/droidpilot/droidpilot-cli/internal/observability"
	"github.com/droidpilot/droidpilot-cli/internal/orchestrator"
	"github.com/droidpilot/droidpilot-cli/internal/service"
)

// newRunCmd creates and configures the `run` command: a single task executed
// in the foreground with events rendered to the terminal.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run \"task description\"",
		Short: "Runs a single automation task against a connected device",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("device.serial", cmd.Flags().Lookup("device")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			mode, err := schemas.ParseMode(viper.GetString("mode"))
			if err != nil {
				return err
			}
			taskText := strings.Join(args, " ")
			showThinking := viper.GetBool("thinking")

			components, err := service.NewComponents(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}

			logger.Info("Starting task",
				zap.String("mode", string(mode)),
				zap.String("task", taskText))

			// The run is bound to the background context so the terminal
			// Aborted event is still delivered after Ctrl-C; the signal
			// context triggers the abort instead of killing the run.
			run, err := components.StartRun(context.Background(), taskText, mode, cfg.Device.Serial)
			if err != nil {
				return fmt.Errorf("failed to start task: %w", err)
			}

			go func() {
				<-ctx.Done()
				run.Abort()
			}()

			for e := range run.Events() {
				renderEvent(e, showThinking)
			}

			switch te := run.Terminal().(type) {
			case orchestrator.TaskCompleteEvent:
				fmt.Printf("\nTask complete. Task ID: %s\n", run.Task.ID)
				return nil
			case orchestrator.AbortedEvent:
				return errors.New("task aborted")
			case orchestrator.ErrorEvent:
				return fmt.Errorf("task failed (%s): %s", te.ErrorKind, te.Message)
			default:
				return errors.New("task ended without a terminal event")
			}
		},
	}

	runCmd.Flags().StringP("mode", "m", "deliberate", "Execution mode: 'deliberate', 'responsive' or 'batched'.")
	runCmd.Flags().StringP("device", "s", "", "Device serial. (Overrides config/env)")
	runCmd.Flags().Bool("thinking", false, "Stream the decision model's reasoning to the terminal.")

	return runCmd
}

// renderEvent prints one orchestrator event in a compact terminal form.
func renderEvent(e orchestrator.Event, showThinking bool) {
	switch ev := e.(type) {
	case orchestrator.PlanEvent:
		fmt.Printf("Plan (%d actions estimated):\n", ev.EstimatedActions)
		for i, step := range ev.Steps {
			fmt.Printf("  %d. %s\n", i+1, step)
		}
	case orchestrator.DecisionStartEvent:
		fmt.Printf("... %s\n", ev.Stage)
	case orchestrator.DecisionThinkingEvent:
		if showThinking {
			fmt.Print(ev.Chunk)
		}
	case orchestrator.DecisionResultEvent:
		if showThinking {
			fmt.Println()
		}
		fmt.Printf("-> %s %s\n", ev.Action, ev.Target)
	case orchestrator.VisionStartEvent:
		fmt.Printf("... looking at screen (%s)\n", ev.Stage)
	case orchestrator.VisionRecognitionEvent:
		fmt.Printf("    saw: %s\n", ev.Description)
	case orchestrator.ActionStartEvent:
		fmt.Printf("    %s %s\n", ev.Action, ev.Target)
	case orchestrator.ActionResultEvent:
		if ev.Success {
			fmt.Println("    ok")
		} else {
			fmt.Printf("    FAILED: %s\n", ev.Message)
		}
	case orchestrator.StepCompleteEvent:
		fmt.Printf("[step %d done]\n", ev.StepIndex+1)
	case orchestrator.TaskCompleteEvent:
		if ev.Message != "" {
			fmt.Printf("DONE: %s\n", ev.Message)
		} else {
			fmt.Println("DONE")
		}
	case orchestrator.ErrorEvent:
		fmt.Printf("ERROR (%s): %s\n", ev.ErrorKind, ev.Message)
	case orchestrator.AbortedEvent:
		fmt.Println("ABORTED")
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
