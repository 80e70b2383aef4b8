package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"olmbox/internal/crypto"
)

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "info [private|sessions|all]",
		Short:     "Print identity keys, fingerprints and known sessions",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"private", "sessions", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := accountManager()
			if err != nil {
				return err
			}
			if !m.Enabled() {
				fmt.Println("Encryption is disabled.")
				return nil
			}

			mode := "private"
			if len(args) == 1 {
				mode = args[0]
			}

			if mode == "private" || mode == "all" {
				keys := m.IdentityKeys()
				fmt.Printf("Identity keys for %s (%s):\n", m.UserID(), m.DeviceID())
				fmt.Printf("  Curve25519:  %s\n", crypto.PartitionKey(string(keys.Curve25519)))
				fmt.Printf("  Ed25519:     %s\n", crypto.PartitionKey(string(keys.Ed25519)))
				fmt.Printf("  Fingerprint: %s\n", crypto.Fingerprint([]byte(keys.Ed25519)))
			}

			if mode == "sessions" || mode == "all" {
				senders := m.Senders()
				if len(senders) == 0 {
					fmt.Println("No pairwise sessions.")
				}
				for _, sender := range senders {
					fmt.Printf("Sessions with %s:\n", sender)
					for _, sid := range m.SessionIDs(sender) {
						fmt.Printf("  %s\n", sid)
					}
				}
			}

			if mode == "all" {
				for _, known := range m.KnownUsers() {
					fmt.Printf("Device keys for %s:\n", known)
					for _, rec := range m.DeviceKeys(known) {
						for alg, key := range rec.Keys {
							fmt.Printf("  %s %s: %s\n", rec.DeviceID, alg, crypto.PartitionKey(key))
						}
					}
				}
			}
			return nil
		},
	}
}
