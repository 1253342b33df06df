/*
Copyright © 2024 John Dudmesh <john@dudmesh.co.uk>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jdudmesh/graphlink/internal/config"
	"github.com/jdudmesh/graphlink/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var logger *slog.Logger
var v *viper.Viper

// baseCmd represents the base command when called without any subcommands
var baseCmd = &cobra.Command{
	Use:   "graphlink",
	Short: "Client for a remote graph database",
	Long: `graphlink sends queries and mutations to a graph server over HTTP,
HTTP/3, gRPC, QUIC or NATS and prints the results as JSON.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(l *slog.Logger) {
	logger = l
	err := baseCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := baseCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./graphlink.yaml)")
	flags.String("transport", "", "transport: http, http3, grpc, quic or nats")
	flags.String("address", "", "server address")
	flags.String("token", "", "bearer token")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.Bool("validate", false, "validate queries before sending them")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	v = config.New(cfgFile)

	flags := baseCmd.PersistentFlags()
	bind := map[string]string{
		"transport":            "transport",
		"address":              "address",
		"token":                "token",
		"log_level":            "log-level",
		"insecure_skip_verify": "insecure",
		"validate_queries":     "validate",
	}
	for key, flag := range bind {
		err := v.BindPFlag(key, flags.Lookup(flag))
		if err != nil {
			fmt.Fprintln(os.Stderr, "binding flag:", err)
		}
	}

	err := config.Read(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if used := v.ConfigFileUsed(); used != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
}

func loadConfig() (client.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return cfg, err
	}

	level := config.ParseLevel(cfg.LogLevel)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cfg.Logger = logger

	return cfg, nil
}

// connect loads the config and dials the server. The caller closes the
// client.
func connect(ctx context.Context) (*client.Client, client.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}

	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("connecting to %s: %w", cfg.Address, err)
	}

	return c, cfg, nil
}

func printJSON(val any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(val)
}

// readArg returns arg itself, the contents of the file named by @path, or
// stdin for "-".
func readArg(arg string) ([]byte, error) {
	switch {
	case arg == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return b, nil
	case strings.HasPrefix(arg, "@"):
		b, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg[1:], err)
		}
		return b, nil
	default:
		return []byte(arg), nil
	}
}
