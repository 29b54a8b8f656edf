package main

import (
	"context"
	"fmt"
	"time"

	"tradesync/internal/syncer"

	"github.com/spf13/cobra"
)

var testExchange string

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify exchange API credentials",
	Long: `Test issues one lightweight authenticated call against the exchange
and reports a diagnostic: bad key, bad secret, missing permissions, IP not
whitelisted, or a transient upstream problem.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		adapter, cred, err := buildAdapter(testExchange)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		result := syncer.New(adapter).TestConnection(ctx, cred)
		if !result.OK {
			return fmt.Errorf("connection test failed: %s", result.Diagnostic)
		}
		fmt.Printf("%s: %s (key %s)\n", adapter.Name(), result.Diagnostic, cred.Fingerprint())
		return nil
	},
}

func init() {
	testCmd.Flags().StringVar(&testExchange, "exchange", "", "configured exchange to test (required)")
	testCmd.MarkFlagRequired("exchange")
	rootCmd.AddCommand(testCmd)
}
