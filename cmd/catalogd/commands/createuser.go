package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-catalog-backend/internal/repo"
	"github.com/tbourn/go-catalog-backend/internal/services"
)

type createUserFlags struct {
	username string
	email    string
	password string
	first    string
	last     string
	staff    bool
}

func newCreateUserCmd(a *app) *cobra.Command {
	f := &createUserFlags{}
	cmd := &cobra.Command{
		Use:   "createuser",
		Short: "Create an account, optionally with staff rights",
		Long: `Create an account directly in the database. Staff accounts may
manage categories, groups and products through the API.

The password is taken from --password or, when that is empty, from the
CATALOG_PASSWORD environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := f.password
			if password == "" {
				password = os.Getenv("CATALOG_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("--password or CATALOG_PASSWORD is required")
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeDB(db)
			if err := repo.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			auth := a.authService(db)
			u, err := auth.CreateUser(cmd.Context(), services.RegisterInput{
				Username:  f.username,
				Email:     f.email,
				Password:  password,
				Password2: password,
				FirstName: f.first,
				LastName:  f.last,
			}, f.staff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s) staff=%t\n", u.Username, u.ID, u.IsStaff)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "Username (required)")
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "Email address (required)")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "Password (falls back to CATALOG_PASSWORD)")
	cmd.Flags().StringVar(&f.first, "first-name", "", "First name")
	cmd.Flags().StringVar(&f.last, "last-name", "", "Last name")
	cmd.Flags().BoolVar(&f.staff, "staff", false, "Grant staff rights")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
