package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"medrun/internal/agent"
	"medrun/internal/config"
)

// NewAskCmd creates the ask command.
func NewAskCmd() *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer a question about the patient records",
		Example: `  # Ask about one patient
  medrun ask "what medications is patient-7 taking"

  # Population query with live progress
  medrun ask --events "how many patients have diabetes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), showEvents)
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "print orchestration events as they happen")
	return cmd
}

func runAsk(cmd *cobra.Command, query string, showEvents bool) error {
	cfg := config.GetConfig()
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Progress lines go to a terminal by default; piping output keeps it
	// to just the answer unless --events asks otherwise.
	interactive := term.IsTerminal(int(os.Stdout.Fd()))

	sess, events := rt.Orchestrator.Run(ctx, query)
	for ev := range events {
		if showEvents || (interactive && !globalFlags.Quiet) {
			printEvent(cmd, ev)
		}
	}

	if sess.Answer == "" {
		return fmt.Errorf("no answer produced")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), sess.Answer)
	return nil
}

func printEvent(cmd *cobra.Command, ev agent.Event) {
	out := cmd.ErrOrStderr()
	switch ev.Type {
	case agent.EventTaskStart:
		fmt.Fprintf(out, "-> %s: %s\n", ev.TaskID, ev.TaskDescription)
	case agent.EventToolExecution:
		status := "ok"
		if ev.IsError {
			status = "error"
		}
		fmt.Fprintf(out, "   %s [%s] %dms\n", ev.Tool, status, ev.DurationMs)
	case agent.EventTaskComplete:
		if ev.TaskStatus == agent.TaskFailed {
			fmt.Fprintf(out, "<- %s failed (%s)\n", ev.TaskID, ev.Reason)
			return
		}
		fmt.Fprintf(out, "<- %s %s\n", ev.TaskID, ev.TaskStatus)
	case agent.EventWarning:
		fmt.Fprintf(out, " ! %s\n", ev.Message)
	case agent.EventError:
		fmt.Fprintf(out, " ! %s\n", ev.Message)
	}
}
