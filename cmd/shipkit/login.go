package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/shipkit/platform/pkg/api/client"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the platform API",
	Long: `Authenticate against the platform API and store the access token.

The password is prompted interactively unless --password is supplied.
Use --guest to request an anonymous session when the API runs without
external auth providers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		apiBase, _ := cmd.Flags().GetString("api")
		guest, _ := cmd.Flags().GetBool("guest")
		signup, _ := cmd.Flags().GetBool("signup")

		cfg, _ := loadConfig()
		if strings.TrimSpace(apiBase) != "" {
			cfg.APIBaseURL = apiBase
		} else if cfg.APIBaseURL == "" {
			cfg.APIBaseURL = "http://localhost:4000"
		}

		client, err := apiclient.New(cfg.APIBaseURL)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		var session apiclient.SessionResponse
		switch {
		case guest:
			session, err = client.GuestSession(ctx)
		default:
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required (or use --guest)")
			}
			secret := strings.TrimSpace(password)
			if secret == "" {
				fmt.Print("Password: ")
				raw, perr := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Print("\n")
				if perr != nil {
					return fmt.Errorf("read password: %w", perr)
				}
				secret = string(raw)
			}
			if signup {
				session, err = client.Signup(ctx, email, secret)
			} else {
				session, err = client.Login(ctx, email, secret)
			}
		}
		if err != nil {
			return err
		}

		cfg.AccessToken = session.Tokens.AccessToken
		if err := saveConfig(cfg); err != nil {
			return err
		}
		if session.User.Guest {
			fmt.Println("guest session started")
			return nil
		}
		fmt.Printf("logged in as %s\n", session.User.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().String("email", "", "Email address")
	loginCmd.Flags().String("password", "", "Password (supply to avoid prompt)")
	loginCmd.Flags().String("api", "", "API base URL (default http://localhost:4000)")
	loginCmd.Flags().Bool("guest", false, "Request an anonymous session")
	loginCmd.Flags().Bool("signup", false, "Create a new account instead of logging in")
}
