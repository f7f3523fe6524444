package cmd

import (
	"fmt"
	"net/url"

	"github.com/jrsteele09/go-role-sessions/impersonation"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var impersonateCmd = &cobra.Command{
	Use:   "impersonate <hand-off-url>",
	Short: "Take over a session from an impersonation link",
	Long: `Stores the tokens carried by an impersonation link, as issued by the admin
console, in the namespace the link targets.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := url.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid hand-off url: %w", err)
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		ingester := impersonation.NewIngester(e.store, e.client)
		res, err := ingester.Ingest(ctx, impersonation.ParseRequest(u))
		if err != nil {
			return err
		}
		ingester.Wait()

		pterm.Success.Printf("Took over the %s session\n", res.Namespace)
		if !res.Durable {
			pterm.Warning.Println("Session database unavailable, the session ends with this command")
		}
		if res.Profile != nil {
			pterm.Info.Printf("Acting as %s (%s)\n", res.Profile.Username, res.Profile.FullName)
		}
		pterm.Info.Printf("Landing page: %s\n", res.Redirect)
		return nil
	},
}
