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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jdudmesh/graphlink/pkg/client"
	"github.com/jdudmesh/graphlink/pkg/spool"
	"github.com/jdudmesh/graphlink/pkg/wire"
	"github.com/spf13/cobra"
)

const maxLineSize = 16 << 20

var bulkCmd = &cobra.Command{
	Use:   "bulk [file | -]",
	Short: "Bulk insert items read one JSON object per line",
	Long: `Bulk insert vertices, edges and properties. Each input line is one item:

  {"type":"vertex","vertex":{"id":"...","t":"person"}}
  {"type":"edge","key":{"outbound_id":"...","t":"knows","inbound_id":"..."}}

When spool.database_url is configured items are written to the spool first,
and anything left over from an earlier interrupted run is sent as well.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancelFn := commandContext(cmd)
		defer cancelFn()

		purge, err := cmd.Flags().GetDuration("purge")
		if err != nil {
			return fmt.Errorf("no purge flag: %w", err)
		}

		var in io.Reader = os.Stdin
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()
			in = f
		}

		c, cfg, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var sp client.Spool
		var store *spool.Store
		if cfg.Spool.DatabaseURL != "" {
			store, err = spool.Open(ctx, cfg.Spool.DatabaseURL, logger)
			if err != nil {
				return fmt.Errorf("opening spool: %w", err)
			}
			defer store.Close()
			sp = store
		}

		b := c.NewBulkInserter(cfg.Spool.BatchSize, sp)

		count := 0
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			item, err := wire.DecodeBulkItem(line)
			if err != nil {
				return fmt.Errorf("line %d: %w", count+1, err)
			}

			err = addItem(ctx, b, item)
			if err != nil {
				return err
			}
			count++
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		err = b.Flush(ctx)
		if err != nil {
			return fmt.Errorf("flushing: %w", err)
		}

		logger.Info("bulk insert complete", "items", count)

		if store != nil && purge > 0 {
			_, err = store.Purge(ctx, time.Now().Add(-purge))
			if err != nil {
				return err
			}
		}

		return nil
	},
}

func addItem(ctx context.Context, b *client.BulkInserter, item wire.BulkItem) error {
	switch it := item.(type) {
	case wire.VertexItem:
		return b.AddVertex(ctx, it.Vertex)
	case wire.EdgeItem:
		return b.AddEdge(ctx, it.Key)
	case wire.VertexPropertyItem:
		return b.AddVertexProperty(ctx, it.ID, it.Name, it.Value)
	case wire.EdgePropertyItem:
		return b.AddEdgeProperty(ctx, it.Key, it.Name, it.Value)
	default:
		return fmt.Errorf("unsupported bulk item %s", item.ItemType())
	}
}

func init() {
	bulkCmd.Flags().Duration("purge", 0, "delete spooled items flushed longer ago than this")
	baseCmd.AddCommand(bulkCmd)
}
