package cmd

import (
	"fmt"

	"github.com/jrsteele09/go-role-sessions/login"
	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	logoutNamespace string
	logoutAll       bool
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out of one role, or all of them",
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := selectNamespaces(logoutNamespace, logoutAll)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		flow := login.NewFlow(e.store, e.client, login.WithDecoder(e.decoder))
		for _, ns := range targets {
			if err := flow.Logout(ctx, ns); err != nil {
				return err
			}
			pterm.Success.Printf("Signed out of %s\n", ns)
		}
		return nil
	},
}

// selectNamespaces is every namespace when all is set, else the one named by ns.
func selectNamespaces(ns string, all bool) ([]namespace.Namespace, error) {
	if all {
		return namespace.All, nil
	}
	n, ok := namespace.Parse(ns)
	if !ok {
		return nil, fmt.Errorf("unknown namespace %q (want user, agency, employee or admin)", ns)
	}
	return []namespace.Namespace{n}, nil
}

func init() {
	logoutCmd.Flags().StringVar(&logoutNamespace, "ns", "user", "Namespace to sign out of")
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Sign out of every namespace")
}
