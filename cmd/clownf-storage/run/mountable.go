/*
   Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package run

import (
	"github.com/spf13/cobra"

	"github.com/coral-ha/clownf"
	"github.com/coral-ha/clownf/utils/log"
)

func (c *command) mountableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   clownf.MountableCommand + " <device|zpool_name>",
		Short: "Check whether a Lustre target is mountable on this host",
		Long: `Check whether a Lustre target is mountable on this host.

The status line goes to stdout, diagnostics to stderr. The exit status is
0 when mountable, 29 when another host holds the target, 24 when a forced
import is needed, 25 for invalid input, 26 for a broken target, 27 when
the target lacks multi-mount protection and 28 when the check should be
retried later.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := c.factory(c.cfg, c.stdout).Run(c.ctx, args[0])
			log.Debugf("device [%s] verdict [%s]", args[0], v)
			c.exitCode = v.ExitCode()
			return nil
		},
	}
}
