package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omochice/livechat/internal/config"
	"github.com/omochice/livechat/internal/credentials"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return &configError{err: err}
			}
			if err := credentials.NewFileStore(cfg.CredentialsPath).Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
