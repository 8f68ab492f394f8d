package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"zugferd/internal/invoice"
	"zugferd/internal/logger"
	"zugferd/internal/preferences"
	"zugferd/pkg/models"
)

// schemaTypes maps the schema names to example values of the documents.
var schemaTypes = map[string]any{
	"senders":     []models.TradeParty{},
	"recipients":  []models.TradeParty{},
	"products":    []models.Product{},
	"draft":       &invoice.Draft{},
	"preferences": &preferences.Preferences{},
}

var schemaCmd = &cobra.Command{
	Use:   "schema <senders|recipients|products|draft|preferences>",
	Short: "Print the JSON schema of a data file",
	Long: `Print the JSON schema of one of the documents the application reads:
the stored collections, the preferences and invoice drafts. Editors use it
for completion and validation.`,
	Example: `  zugferd schema draft > draft.schema.json`,
	Args:    cobra.ExactArgs(1),
	RunE:    runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	v, ok := schemaTypes[args[0]]
	if !ok {
		names := make([]string, 0, len(schemaTypes))
		for name := range schemaTypes {
			names = append(names, name)
		}
		sort.Strings(names)
		return fmt.Errorf("unknown document %q, use one of %s", args[0], strings.Join(names, ", "))
	}

	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	schema := r.Reflect(v)
	schema.Title = args[0]
	return writeJSON(cmd, schema, "", logger.WithComponent("schema"))
}
