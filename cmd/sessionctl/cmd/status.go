package cmd

import (
	"time"

	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/jrsteele09/go-role-sessions/session"
	"github.com/jrsteele09/go-role-sessions/storage"
	"github.com/jrsteele09/go-role-sessions/token/refresh"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var statusNamespace string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session of every role",
	Long: `Resolves each namespace the way a guarded route would, refreshing an expired
access token when a refresh token is stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		targets := namespace.All
		if statusNamespace != "" {
			var err error
			if targets, err = selectNamespaces(statusNamespace, false); err != nil {
				return err
			}
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		resolver := session.NewResolver(e.store, refresh.NewCoordinator(e.store, e.client, refresh.WithDecoder(e.decoder)))
		rows := pterm.TableData{{"NAMESPACE", "STATE", "ROLE", "USERNAME", "EXPIRES", "NOTE"}}
		for _, ns := range targets {
			res := resolver.Resolve(ctx, ns)
			if !res.Granted {
				note := ""
				if res.Err != nil {
					note = res.Err.Error()
				}
				rows = append(rows, []string{ns.String(), pterm.Gray("signed out"), "", "", "", note})
				continue
			}
			expires := ""
			if res.Claims.ExpiresAt != nil {
				expires = res.Claims.ExpiresAt.Time.Local().Format(time.Kitchen)
			}
			note := ""
			if res.Profile != nil && res.Profile.FullName != "" {
				note = res.Profile.FullName
			}
			if _, ok := e.store.Get(ctx, ns, storage.FieldRefresh); !ok {
				note = "no refresh token"
			}
			rows = append(rows, []string{ns.String(), pterm.Green("signed in"), res.Role(), res.Claims.Username, expires, note})
		}

		pterm.DefaultSection.Println("Sessions")
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusNamespace, "ns", "", "Only show this namespace")
}
