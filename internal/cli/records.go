package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"medrun/internal/config"
	"medrun/internal/recordstore"
	"medrun/pkg/logger"
)

// NewRecordsCmd creates the records command.
func NewRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect the patient record directory",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List patient IDs found in the record directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig()
			store, err := recordstore.NewStore(cfg.Records.Dir, logger.Component("recordstore"))
			if err != nil {
				return err
			}
			defer store.Close()

			ids, err := store.ListPatientIDs(limit)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			fmt.Printf("%d patients\n", len(ids))
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 0, "maximum number of patients to list (0 = all)")

	cmd.AddCommand(listCmd)
	return cmd
}
