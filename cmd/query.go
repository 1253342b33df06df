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
	"encoding/json"
	"fmt"

	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/jdudmesh/graphlink/pkg/query"
	"github.com/jdudmesh/graphlink/pkg/wire"
	"github.com/spf13/cobra"
)

// parseQuery decodes a query tree given inline, as @file or on stdin.
func parseQuery(arg string) (query.Query, error) {
	b, err := readArg(arg)
	if err != nil {
		return nil, err
	}

	n, err := wire.DecodeQuery(b)
	if err != nil {
		return nil, fmt.Errorf("parsing query: %w", err)
	}

	return query.Wrap(n), nil
}

var queryCmd = &cobra.Command{
	Use:   "query <query | @file | ->",
	Short: "Run a query and print its outputs",
	Long: `Run a query given as a JSON tree, for example

  graphlink query '{"type":"count","inner":{"type":"all_vertex"}}'

One output is printed per included node, followed by the output of the query
itself.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancelFn := commandContext(cmd)
		defer cancelFn()

		q, err := parseQuery(args[0])
		if err != nil {
			return err
		}

		c, _, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		outs, err := c.Get(ctx, q)
		if err != nil {
			return err
		}

		encoded := make([]json.RawMessage, 0, len(outs))
		for _, o := range outs {
			b, err := wire.EncodeOutput(o)
			if err != nil {
				return fmt.Errorf("encoding output: %w", err)
			}
			encoded = append(encoded, b)
		}

		return printJSON(encoded)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <query | @file | ->",
	Short: "Delete the vertices, edges or properties a query matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancelFn := commandContext(cmd)
		defer cancelFn()

		q, err := parseQuery(args[0])
		if err != nil {
			return err
		}

		c, _, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		return c.Delete(ctx, q)
	},
}

var setCmd = &cobra.Command{
	Use:   "set <query | @file | -> <name> <json value>",
	Short: "Set a property on everything a query matches",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancelFn := commandContext(cmd)
		defer cancelFn()

		q, err := parseQuery(args[0])
		if err != nil {
			return err
		}

		if !json.Valid([]byte(args[2])) {
			return fmt.Errorf("value %q is not valid JSON", args[2])
		}

		c, _, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		return c.SetProperties(ctx, q, model.Identifier(args[1]), json.RawMessage(args[2]))
	},
}

func init() {
	baseCmd.AddCommand(queryCmd)
	baseCmd.AddCommand(deleteCmd)
	baseCmd.AddCommand(setCmd)
}
