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

package exec

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/coral-ha/clownf/utils/log"
)

// Executor is the main interface for all the exec commands
type Executor interface {
	ExecuteCommandWithOutput(ctx context.Context, command string, arg ...string) (string, error)
	ExecuteCommandWithCombinedOutput(ctx context.Context, command string, arg ...string) (string, error)
	LookPath(command string) (string, error)
}

// CommandExecutor is the type of the Executor
type CommandExecutor struct {
	// Timeout bounds every command, zero means only the caller context applies
	Timeout time.Duration
}

// ExecuteCommandWithOutput executes a command and returns its stdout,
// stderr is folded into the returned output when the command fails.
func (c *CommandExecutor) ExecuteCommandWithOutput(ctx context.Context, command string, arg ...string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	logCommand(command, arg...)
	// #nosec G204 the storage checker controls the input to the exec arguments
	cmd := exec.CommandContext(ctx, command, arg...)
	return runCommandWithOutput(ctx, cmd, false)
}

// ExecuteCommandWithCombinedOutput executes a command with combined output
func (c *CommandExecutor) ExecuteCommandWithCombinedOutput(ctx context.Context, command string, arg ...string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	logCommand(command, arg...)
	// #nosec G204 the storage checker controls the input to the exec arguments
	cmd := exec.CommandContext(ctx, command, arg...)
	return runCommandWithOutput(ctx, cmd, true)
}

// LookPath resolves command in PATH unless it already contains a slash
func (*CommandExecutor) LookPath(command string) (string, error) {
	return exec.LookPath(command)
}

func (c *CommandExecutor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}

func runCommandWithOutput(ctx context.Context, cmd *exec.Cmd, combinedOutput bool) (string, error) {
	var output []byte
	var err error

	if combinedOutput {
		output, err = cmd.CombinedOutput()
	} else {
		output, err = cmd.Output()
		if err != nil {
			output = []byte(fmt.Sprintf("%s. %s", string(output), assertErrorType(err)))
		}
	}

	out := strings.TrimSpace(string(output))
	if string(output) != "" {
		log.Debug(out)
	}

	if ctx.Err() == context.DeadlineExceeded {
		return out, fmt.Errorf("timeout waiting for the command %s to return: %w", cmd.Path, ctx.Err())
	}
	if err != nil {
		return out, err
	}

	return out, nil
}

func logCommand(command string, arg ...string) {
	log.Debugf("Running command: %s %s", command, strings.Join(arg, " "))
}

func assertErrorType(err error) string {
	switch errType := err.(type) {
	case *exec.ExitError:
		return string(errType.Stderr)
	case *exec.Error:
		return errType.Error()
	}

	return ""
}
