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
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index <property>",
	Short: "Index a property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancelFn := commandContext(cmd)
		defer cancelFn()

		c, _, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		return c.IndexProperty(ctx, model.Identifier(args[0]))
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin <name> [json arg | @file | -]",
	Short: "Run a server-side plugin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancelFn := commandContext(cmd)
		defer cancelFn()

		arg := json.RawMessage("null")
		if len(args) == 2 {
			b, err := readArg(args[1])
			if err != nil {
				return err
			}
			if !json.Valid(b) {
				return fmt.Errorf("plugin argument is not valid JSON")
			}
			arg = b
		}

		c, _, err := connect(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.ExecutePlugin(ctx, args[0], arg)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	baseCmd.AddCommand(indexCmd)
	baseCmd.AddCommand(pluginCmd)
}
