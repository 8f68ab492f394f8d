package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"zugferd/internal/invoice"
	"zugferd/pkg/models"
)

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "List the code lists used in invoices",
}

var codesTaxCmd = &cobra.Command{
	Use:   "tax",
	Short: "Tax categories (UNTDID 5305)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tRATE\tDESCRIPTION\tEXEMPTION REASON")
		for _, c := range models.TaxCategories() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Code, invoice.FormatPercent(c.DefaultPercent), c.Description, c.DefaultExemptionReason)
		}
		return w.Flush()
	},
}

var codesUnitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Units of measure (UN/ECE Recommendation 20)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tSINGULAR\tPLURAL")
		for _, u := range models.Units() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", u.Code, u.Singular, u.Plural)
		}
		return w.Flush()
	},
}

var codesPaymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Payment means (UNTDID 4461)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tDESCRIPTION")
		for _, m := range models.PaymentMethods() {
			fmt.Fprintf(w, "%d\t%s\n", m.Code, m.Description)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(codesCmd)
	codesCmd.AddCommand(codesTaxCmd, codesUnitsCmd, codesPaymentCmd)
}
