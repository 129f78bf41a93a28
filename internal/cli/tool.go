package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"medrun/internal/config"
)

// NewToolCmd creates the tool command.
func NewToolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Inspect and run registered tools",
	}

	cmd.AddCommand(newToolListCmd())
	cmd.AddCommand(newToolInfoCmd())
	cmd.AddCommand(newToolRunCmd())
	return cmd
}

func newToolListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(config.GetConfig())
			if err != nil {
				return err
			}
			defer rt.Close()

			if jsonOutput {
				type entry struct {
					Name        string `json:"name"`
					Description string `json:"description"`
				}
				var out []entry
				for _, t := range rt.Registry.List() {
					out = append(out, entry{Name: t.Name(), Description: t.Description()})
				}
				data, _ := json.MarshalIndent(out, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, t := range rt.Registry.List() {
				fmt.Fprintf(w, "%s\t%s\n", t.Name(), t.Description())
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func newToolInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show a tool's parameter schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(config.GetConfig())
			if err != nil {
				return err
			}
			defer rt.Close()

			t, ok := rt.Registry.Get(args[0])
			if !ok {
				return fmt.Errorf("tool not found: %s", args[0])
			}

			fmt.Printf("%s: %s\n\n", t.Name(), t.Description())
			schema, err := json.MarshalIndent(t.Parameters(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(schema))
			return nil
		},
	}
}

func newToolRunCmd() *cobra.Command {
	var argsJSON string

	cmd := &cobra.Command{
		Use:     "run <name>",
		Short:   "Execute a tool directly",
		Example: `  medrun tool run search_conditions --args '{"patient_id":"patient-7"}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(config.GetConfig())
			if err != nil {
				return err
			}
			defer rt.Close()

			toolArgs := map[string]any{}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
					return fmt.Errorf("parse --args: %w", err)
				}
			}

			result, err := rt.Registry.Dispatch(cmd.Context(), args[0], toolArgs)
			if err != nil {
				return err
			}
			fmt.Println(result.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "tool arguments as JSON")
	return cmd
}
