package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func signCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign [file]",
		Short: "Sign a JSON payload with the account's Ed25519 key",
		Long: "Reads a JSON document from the given file (or stdin), canonicalises it " +
			"and prints the detached Ed25519 signature.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := accountManager()
			if err != nil {
				return err
			}
			if !m.Enabled() {
				return fmt.Errorf("encryption is disabled")
			}

			in := io.Reader(os.Stdin)
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return err
			}

			var payload any
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("parse payload: %w", err)
			}
			sig, err := m.SignJSON(payload)
			if err != nil {
				return err
			}
			fmt.Println(sig)
			return nil
		},
	}
}
