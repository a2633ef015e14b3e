package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func (c *cli) adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage dashboard accounts",
	}
	cmd.AddCommand(c.adminCreateCmd(), c.adminPasswdCmd())
	return cmd
}

type credentials struct {
	email    string
	password string
}

func (cr *credentials) bind(fs *pflag.FlagSet) {
	fs.StringVar(&cr.email, "email", "", "account e-mail (required)")
	fs.StringVar(&cr.password, "password", "", "account password (or INMO_ADMIN_PASSWORD)")
	_ = cobra.MarkFlagRequired(fs, "email")
}

func (cr *credentials) resolve() error {
	if cr.password == "" {
		cr.password = os.Getenv("INMO_ADMIN_PASSWORD")
	}
	if cr.password == "" {
		return errors.New("a password is required: pass --password or set INMO_ADMIN_PASSWORD")
	}
	return nil
}

func (c *cli) adminCreateCmd() *cobra.Command {
	var cr credentials
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a dashboard account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cr.resolve(); err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			admin, _, err := a.svc.CreateAdmin(cmd.Context(), cr.email, cr.password)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			fmt.Fprintf(c.out, "admin %s created with id %s\n", admin.Email, admin.ID)
			return nil
		},
	}
	cr.bind(cmd.Flags())
	return cmd
}

func (c *cli) adminPasswdCmd() *cobra.Command {
	var cr credentials
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Replace the password of a dashboard account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cr.resolve(); err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			admin, err := a.svc.SetAdminPassword(cmd.Context(), cr.email, cr.password)
			if err != nil {
				return fmt.Errorf("set password: %w", err)
			}
			fmt.Fprintf(c.out, "password updated for %s\n", admin.Email)
			return nil
		},
	}
	cr.bind(cmd.Flags())
	return cmd
}
