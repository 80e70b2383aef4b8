package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func keysCmd() *cobra.Command {
	var (
		generate int
		publish  bool
	)
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the one-time key pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := accountManager()
			if err != nil {
				return err
			}
			if !m.Enabled() {
				fmt.Println("Encryption is disabled.")
				return nil
			}

			if generate > 0 {
				if err := m.GenerateOneTimeKeys(generate); err != nil {
					return err
				}
				fmt.Printf("Generated %d one-time keys.\n", generate)
			}

			keys := m.OneTimeKeys()
			ids := make([]string, 0, len(keys))
			for kid := range keys {
				ids = append(ids, kid)
			}
			sort.Strings(ids)
			fmt.Printf("%d unpublished one-time keys:\n", len(ids))
			for _, kid := range ids {
				fmt.Printf("  %s: %s\n", kid, keys[kid])
			}

			if publish {
				if err := m.MarkKeysAsPublished(); err != nil {
					return err
				}
				fmt.Println("Marked one-time keys as published.")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&generate, "generate", "g", 0, "generate this many one-time keys first")
	cmd.Flags().BoolVarP(&publish, "publish", "p", false, "mark the pool as published afterwards")
	return cmd
}
