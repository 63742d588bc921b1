package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agenda-service/internal/agenda"
	"agenda-service/internal/app"
	"agenda-service/internal/client"
	"agenda-service/internal/config"
)

func LoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Verify --server and --token and save them to the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Client.Token == "" {
				return fmt.Errorf("%w: --token is required", agenda.ErrValidation)
			}
			me, err := client.New(cfg.Client.ServerURL, cfg.Client.Token, cfg.Client.Timeout).Me(cmd.Context())
			if err != nil {
				return err
			}
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in to %s as %s (%s)\n", cfg.Client.ServerURL, me.TechnicianID, me.Role)
			fmt.Fprintf(cmd.OutOrStdout(), "  Config: %s\n", path)
			return nil
		},
	}
}

func WhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the technician and role of the configured token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			me, err := client.New(cfg.Client.ServerURL, cfg.Client.Token, cfg.Client.Timeout).Me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", me.TechnicianID, me.Role)
			return nil
		},
	}
}

func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <technician-id>",
		Short: "Mint a signed access token with the service's JWT secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				secret = cfg.Auth.JWTSecret
			}
			admin, _ := cmd.Flags().GetBool("admin")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			p := agenda.Principal{TechnicianID: args[0], Role: agenda.RoleTechnician}
			if admin {
				p.Role = agenda.RoleAdmin
			}
			tok, err := app.MintToken([]byte(secret), p, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("secret", "", "HMAC secret (defaults to JWT_HMAC_SECRET or auth.jwt_secret)")
	cmd.Flags().Bool("admin", false, "Grant the administrator role")
	cmd.Flags().Duration("ttl", 30*24*time.Hour, "Token lifetime; 0 never expires")
	return cmd
}
