package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"maunium.net/go/mautrix/id"

	"olmbox/internal/app"
	"olmbox/internal/manager"
)

var (
	home      string
	pickleKey string
	user      string
	device    string
	noCrypto  bool
	verbose   bool

	appCtx *app.App
)

func Execute() error {
	root := &cobra.Command{
		Use:   "olmbox",
		Short: "Encryption account manager for federated messaging",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".olmbox")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().Timestamp().Logger()

			appCtx = app.New(app.Config{
				Home:              home,
				PickleKey:         pickleKey,
				DisableEncryption: noCrypto,
				Logger:            log,
			})
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return appCtx.Close()
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "session storage dir (default ~/.olmbox)")
	root.PersistentFlags().StringVarP(&pickleKey, "pickle-key", "k", "", "passphrase protecting stored crypto state")
	root.PersistentFlags().StringVarP(&user, "user", "u", "", "fully qualified user id, e.g. @alice:example.org")
	root.PersistentFlags().StringVarP(&device, "device", "d", "", "device id")
	root.PersistentFlags().BoolVar(&noCrypto, "no-encryption", false, "run with encryption disabled")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(initCmd(), infoCmd(), keysCmd(), signCmd())
	return root.Execute()
}

// accountManager resolves the manager for the selected --user/--device pair.
func accountManager() (*manager.Manager, error) {
	if user == "" || device == "" {
		return nil, fmt.Errorf("user and device required (-u, -d)")
	}
	return appCtx.Manager(id.UserID(user), id.DeviceID(device))
}
