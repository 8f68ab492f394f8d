package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"zugferd/internal/logger"
	"zugferd/internal/preferences"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show and change the preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the preferences as JSON",
	Args:  cobra.NoArgs,
	RunE:  runPrefsShow,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Change one preference",
	Long: `Change one preference. Names:
  defaultSenderKey - key of the sender used when a draft names none
  currency         - ISO 4217 code, e.g. EUR
  paymentMethod    - UNTDID 4461 code, see "zugferd codes payment"
  profile          - MINIMUM, BASICWL, BASIC, EN16931, EXTENDED or XRECHNUNG
  lastDirectory    - directory offered for the next file`,
	Example: `  zugferd prefs set defaultSenderKey 1
  zugferd prefs set profile XRECHNUNG`,
	Args: cobra.ExactArgs(2),
	RunE: runPrefsSet,
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsShowCmd, prefsSetCmd)
}

func runPrefsShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	return writeJSON(cmd, a.prefs.Get(), "", logger.WithComponent("preferences"))
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	name, value := args[0], args[1]

	if name == "defaultSenderKey" && value != "0" {
		key, err := parseKey(value)
		if err != nil {
			return err
		}
		if _, ok := a.repos.Senders.Get(key); !ok {
			return fmt.Errorf("no sender with key %d", key)
		}
	}

	if err := a.prefs.Set(name, value); err != nil {
		if errors.Is(err, preferences.ErrUnknownKey) {
			return fmt.Errorf("%w. Run \"zugferd prefs set --help\" for the names", err)
		}
		return err
	}
	if err := a.prefs.Save(); err != nil {
		return fmt.Errorf("could not save preferences: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", name, value)
	return nil
}
