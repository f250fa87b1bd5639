package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	baseURL  string
	timeout  time.Duration
	account  string
	token    string
	decimals int32
	output   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "golend-cli",
		Short:         "GoLend CLI tool",
		Long:          `A command line interface for interacting with the GoLend lending pool API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.baseURL, "url", envOr("GOLEND_URL", "http://localhost:8080"), "Base URL of the GoLend API")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	flags.StringVar(&opts.account, "as", os.Getenv("GOLEND_ACCOUNT"), "Caller address sent as X-Account-ID when auth is disabled")
	flags.StringVar(&opts.token, "token", os.Getenv("GOLEND_TOKEN"), "Bearer token")
	flags.Int32Var(&opts.decimals, "decimals", -1, "Asset decimals; amounts are read and shown in whole units when set")
	flags.StringVarP(&opts.output, "output", "o", "table", "Output format: table or json")

	rootCmd.AddCommand(
		loansCmd(opts),
		poolCmd(opts),
		assetsCmd(opts),
		ledgerCmd(opts),
		tokenCmd(),
	)

	return rootCmd
}

// decimalsPtr returns nil when --decimals was not given.
func (o *globalOptions) decimalsPtr() *int32 {
	if o.decimals < 0 {
		return nil
	}
	d := o.decimals
	return &d
}

func (o *globalOptions) json() bool {
	return o.output == "json"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
