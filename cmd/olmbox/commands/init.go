package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"olmbox/internal/crypto"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the encryption account for a user and device",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := accountManager()
			if err != nil {
				return err
			}
			if !m.Enabled() {
				fmt.Println("Encryption is disabled; no account created.")
				return nil
			}
			keys := m.IdentityKeys()
			fmt.Printf("Account ready for %s (%s).\n", m.UserID(), m.DeviceID())
			fmt.Printf("Curve25519: %s\n", crypto.PartitionKey(string(keys.Curve25519)))
			fmt.Printf("Ed25519:    %s\n", crypto.PartitionKey(string(keys.Ed25519)))
			return nil
		},
	}
}
