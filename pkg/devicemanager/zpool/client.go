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

package zpool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/coral-ha/clownf/utils/exec"
	"github.com/coral-ha/clownf/utils/log"
)

// ErrNotAvailable the ZFS userland or kernel module is missing on this host
var ErrNotAvailable = errors.New("ZFS is not available")

// Client is the context the pool checks run in, Close must be called on every path
type Client interface {
	// Imported reports whether pool is imported on this host
	Imported(ctx context.Context, pool string) (bool, error)
	// SearchImport lists the importable pools named pool, without importing them
	SearchImport(ctx context.Context, pool string) ([]ImportablePool, error)
	// LastHostname is the hostname recorded in the pool config by its last importer
	LastHostname(ctx context.Context, pool string) (string, error)
	Close() error
}

// Options locate the ZFS commands and the devices to search
type Options struct {
	ZpoolCmd   string
	ZdbCmd     string
	ZfsDevice  string
	SearchDirs []string
	CacheFile  string
	Executor   exec.Executor
}

type cmdClient struct {
	executor exec.Executor
	zpool    string
	zdb      string
	opts     Options
	closed   bool
}

// NewClient resolves the commands and checks the ZFS control device
func NewClient(opts Options) (Client, error) {
	executor := opts.Executor
	if executor == nil {
		executor = &exec.CommandExecutor{}
	}

	zpool, err := executor.LookPath(opts.ZpoolCmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAvailable, err)
	}
	zdb, err := executor.LookPath(opts.ZdbCmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAvailable, err)
	}
	if _, err := os.Stat(opts.ZfsDevice); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAvailable, err)
	}

	log.Debugf("using %s and %s for zpool checks", zpool, zdb)
	return &cmdClient{executor: executor, zpool: zpool, zdb: zdb, opts: opts}, nil
}

func (c *cmdClient) searchArgs() []string {
	args := []string{}
	for _, dir := range c.opts.SearchDirs {
		args = append(args, "-d", dir)
	}
	return args
}

// Imported runs zpool list, exit status 1 means no such pool
func (c *cmdClient) Imported(ctx context.Context, pool string) (bool, error) {
	_, err := c.executor.ExecuteCommandWithCombinedOutput(ctx, c.zpool, "list", "-H", "-o", "name", pool)
	if err == nil {
		return true, nil
	}
	if code, ok := exec.ExitStatus(err); ok && code == 1 {
		return false, nil
	}
	return false, fmt.Errorf("failed to list zpool %s: %w", pool, err)
}

// SearchImport zpool import without a pool argument only lists, it never imports
func (c *cmdClient) SearchImport(ctx context.Context, pool string) ([]ImportablePool, error) {
	args := append([]string{"import"}, c.searchArgs()...)
	if c.opts.CacheFile != "" {
		args = append(args, "-c", c.opts.CacheFile)
	}

	out, err := c.executor.ExecuteCommandWithCombinedOutput(ctx, c.zpool, args...)
	if err != nil {
		if _, ok := exec.ExitStatus(err); !ok || !strings.Contains(out, noPoolsAvailable) {
			return nil, fmt.Errorf("failed to search importable zpools: %w", err)
		}
	}

	resp := []ImportablePool{}
	for _, p := range parseImportList(out) {
		if p.Name == pool {
			resp = append(resp, p)
		}
	}
	return resp, nil
}

// LastHostname reads the label config of the exported pool
func (c *cmdClient) LastHostname(ctx context.Context, pool string) (string, error) {
	args := []string{"-e"}
	for _, dir := range c.opts.SearchDirs {
		args = append(args, "-p", dir)
	}
	args = append(args, "-C", pool)

	out, err := c.executor.ExecuteCommandWithOutput(ctx, c.zdb, args...)
	if err != nil {
		return "", fmt.Errorf("failed to read config of zpool %s: %w", pool, err)
	}
	hostname := parseZdbHostname(out)
	if hostname == "" {
		return "", fmt.Errorf("no hostname in config of zpool %s", pool)
	}
	return hostname, nil
}

func (c *cmdClient) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	log.Debug("zpool client released")
	return nil
}
