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
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the server is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancelFn := commandContext(cmd)
		defer cancelFn()

		sync, err := cmd.Flags().GetBool("sync")
		if err != nil {
			return fmt.Errorf("no sync flag: %w", err)
		}

		c, cfg, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		start := time.Now()
		err = c.Ping(ctx)
		if err != nil {
			return fmt.Errorf("pinging: %w", err)
		}
		logger.Info("pong", "transport", cfg.Transport, "address", cfg.Address, "elapsed", time.Since(start))

		if sync {
			err = c.Sync(ctx)
			if err != nil {
				return fmt.Errorf("syncing: %w", err)
			}
			logger.Info("synced")
		}

		return nil
	},
}

func init() {
	pingCmd.Flags().Bool("sync", false, "also ask the server to flush to storage")
	baseCmd.AddCommand(pingCmd)
}
