package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"reposync/internal/descriptor"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the repository descriptor document",
	Example: `  reposync schema > reposync.schema.json
  # YAML language server
  # yaml-language-server: $schema=./reposync.schema.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bs, err := descriptor.ReflectSchema()
		if err != nil {
			return fmt.Errorf("failed to build schema: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bs))
		return err
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
