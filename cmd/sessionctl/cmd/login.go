package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/jrsteele09/go-role-sessions/internal/errors"
	"github.com/jrsteele09/go-role-sessions/login"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	loginRole     string
	loginUsername string
	loginPassword string
	loginRemember bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in as one role",
	Long: `Signs in to the namespace of --role. Sessions of other roles are left untouched.

Without --remember the session only lives for this invocation, which is
mainly useful to check credentials.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginUsername == "" {
			return fmt.Errorf("--username is required")
		}
		if loginPassword == "" {
			pw, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password")
			if err != nil {
				return err
			}
			loginPassword = pw
		}
		if loginPassword == "-" {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading password from stdin: %w", err)
			}
			loginPassword = strings.TrimRight(line, "\r\n")
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		spinner, _ := pterm.DefaultSpinner.Start("Signing in as " + loginRole)
		res, err := login.NewFlow(e.store, e.client, login.WithDecoder(e.decoder)).Login(ctx, login.Request{
			Username: loginUsername,
			Password: loginPassword,
			Role:     loginRole,
			Remember: loginRemember,
		})
		if err != nil {
			spinner.Fail("Sign in failed")
			var ambiguous *errors.AmbiguousIdentityError
			if errors.As(err, &ambiguous) {
				pterm.Info.Println("Matching accounts:")
				_ = pterm.DefaultBulletList.WithItems(bullets(ambiguous.Candidates)).Render()
			}
			return err
		}
		spinner.Success(fmt.Sprintf("Signed in to %s as %s", res.Namespace, res.Claims.Username))

		if !loginRemember {
			pterm.Warning.Println("Session was not remembered and ends with this command (use --remember)")
		}
		if res.Profile != nil {
			pterm.Info.Printf("Profile: %s <%s>\n", res.Profile.FullName, res.Profile.Email)
		}
		return nil
	},
}

func bullets(items []string) []pterm.BulletListItem {
	out := make([]pterm.BulletListItem, 0, len(items))
	for _, it := range items {
		out = append(out, pterm.BulletListItem{Level: 0, Text: it})
	}
	return out
}

func init() {
	loginCmd.Flags().StringVar(&loginRole, "role", "user", "Role to sign in as: user, agency, employee or admin")
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username, email or phone")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password, '-' to read it from stdin (prompted when empty)")
	loginCmd.Flags().BoolVar(&loginRemember, "remember", true, "Keep the session after this command")
}
