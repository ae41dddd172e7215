package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"techverse/marketplace/internal/store"
)

func createAdminCmd() *cobra.Command {
	var email, username, password string

	c := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account, or promote an existing one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg, log, false)
			if err != nil {
				return err
			}
			defer st.Close()

			u, created, err := st.EnsureAdmin(cmd.Context(), store.NewUser{
				Username: username,
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Email, u.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is an admin\n", u.Email)
			}
			return nil
		},
	}

	c.Flags().StringVar(&email, "email", "admin@techverse.com", "Admin email")
	c.Flags().StringVar(&username, "username", "Administrator", "Admin display name")
	c.Flags().StringVar(&password, "password", "", "Password for a newly created account (min 8 characters)")
	return c
}
