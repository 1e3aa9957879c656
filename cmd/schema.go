package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onchainos/steward/internal/schema"
)

func schemaCMD() *cobra.Command {
	var list bool
	var dump bool
	var operation string
	var paramsFile string

	var sc = &cobra.Command{
		Use:   "schema",
		Short: "Inspect intent parameter schemas or validate a parameter file",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case list:
				for _, op := range schema.Operations() {
					fmt.Println(op)
				}
				return nil
			case dump:
				fmt.Println(schema.Raw())
				return nil
			case operation != "":
				if paramsFile == "" {
					return fmt.Errorf("--params is required with --operation")
				}
				raw, err := os.ReadFile(paramsFile)
				if err != nil {
					return err
				}
				var params map[string]interface{}
				if err := json.Unmarshal(raw, &params); err != nil {
					return fmt.Errorf("params file is not a JSON object: %w", err)
				}
				if err := schema.ValidateParams(operation, params); err != nil {
					return err
				}
				fmt.Printf("%s: params valid\n", operation)
				return nil
			default:
				return cmd.Usage()
			}
		},
	}
	sc.Flags().BoolVar(&list, "list", false, "list operations with embedded schemas")
	sc.Flags().BoolVar(&dump, "dump", false, "print the embedded schema document")
	sc.Flags().StringVar(&operation, "operation", "", "operation to validate against")
	sc.Flags().StringVar(&paramsFile, "params", "", "path to a JSON parameter file")

	return sc
}
