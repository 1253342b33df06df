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
	"fmt"

	"github.com/google/uuid"
	"github.com/jdudmesh/graphlink/pkg/model"
	"github.com/spf13/cobra"
)

var vertexCmd = &cobra.Command{
	Use:   "vertex <type>",
	Short: "Create a vertex",
	Long: `Create a vertex of the given type. With --id the vertex is created with
that id and the command reports whether it was new; otherwise the server
picks the id and it is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancelFn := commandContext(cmd)
		defer cancelFn()

		idFlag, err := cmd.Flags().GetString("id")
		if err != nil {
			return fmt.Errorf("no id flag: %w", err)
		}

		c, _, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		t := model.Identifier(args[0])

		if idFlag == "" {
			id, err := c.CreateVertexFromType(ctx, t)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"id": id})
		}

		id, err := uuid.Parse(idFlag)
		if err != nil {
			return fmt.Errorf("parsing id: %w", err)
		}

		created, err := c.CreateVertex(ctx, model.Vertex{ID: id, Type: t})
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"id": id, "created": created})
	},
}

var edgeCmd = &cobra.Command{
	Use:   "edge <outbound id> <type> <inbound id>",
	Short: "Create an edge",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancelFn := commandContext(cmd)
		defer cancelFn()

		outbound, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parsing outbound id: %w", err)
		}
		inbound, err := uuid.Parse(args[2])
		if err != nil {
			return fmt.Errorf("parsing inbound id: %w", err)
		}

		c, _, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		key := model.NewEdgeKey(outbound, model.Identifier(args[1]), inbound)
		created, err := c.CreateEdge(ctx, key)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"key": key, "created": created})
	},
}

func init() {
	vertexCmd.Flags().String("id", "", "create the vertex with this id")
	baseCmd.AddCommand(vertexCmd)
	baseCmd.AddCommand(edgeCmd)
}
