// Command loyaltyctl runs maintenance and reporting jobs against the loyalty
// database without going through the HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teddyfriends/loyalty/internal/config"
	"github.com/teddyfriends/loyalty/internal/db"
	"github.com/teddyfriends/loyalty/internal/services"
	"github.com/teddyfriends/loyalty/internal/signature"
)

var Version = "dev"

// app holds what every subcommand needs. svc is opened lazily so --help works
// without a database.
type app struct {
	configPath string
	output     string
	svc        *services.Service
}

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "loyaltyctl",
		Short:         "Operator tool for the Teddy & Friends loyalty backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.output != "json" && a.output != "yaml" {
				return fmt.Errorf("unsupported --output %q (json|yaml)", a.output)
			}
			return a.open()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("LOYALTY_CONFIG"), "path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "yaml", "output format (json, yaml)")

	rootCmd.AddCommand(cleanupCodesCmd(a))
	rootCmd.AddCommand(expireVouchersCmd(a))
	rootCmd.AddCommand(statsCmd(a))
	rootCmd.AddCommand(createFamilyCmd(a))
	rootCmd.AddCommand(statusCmd(a))
	rootCmd.AddCommand(issueCodeCmd(a))
	rootCmd.AddCommand(confirmCmd(a))
	rootCmd.AddCommand(issueVoucherCmd(a))
	rootCmd.AddCommand(redeemCmd(a))
	rootCmd.AddCommand(subscribeCmd(a))
	rootCmd.AddCommand(unsubscribeCmd(a))
	rootCmd.AddCommand(subscriptionsCmd(a))
	rootCmd.AddCommand(broadcastsCmd(a))
	return rootCmd
}

func (a *app) open() error {
	if a.svc != nil {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := db.Init(db.Options{Path: cfg.Database.Path}); err != nil {
		return fmt.Errorf("db init: %w", err)
	}
	a.svc = services.New(db.Conn(), signature.New(cfg.Security.HMACSecret), cfg.Services())
	return nil
}
