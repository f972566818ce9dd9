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

	"github.com/coral-ha/clownf/pkg/verdict"
	"github.com/coral-ha/clownf/utils/log"
)

// DefaultLastHostname is reported when the pool config names no host
const DefaultLastHostname = "another system"

// Classifier decides mountability of a pool from its import status
type Classifier struct {
	NewClient func() (Client, error)
}

// NewClassifier returns a classifier running the ZFS commands described by opts
func NewClassifier(opts Options) *Classifier {
	return &Classifier{NewClient: func() (Client, error) {
		return NewClient(opts)
	}}
}

// Check runs the pool status protocol for pool
func (c *Classifier) Check(ctx context.Context, pool string) verdict.Result {
	client, err := c.NewClient()
	if err != nil {
		log.Errorf("failed to init ZFS: %s", err)
		return verdict.New(verdict.Again)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warnf("failed to release zpool client: %s", err)
		}
	}()

	imported, err := client.Imported(ctx, pool)
	if err != nil {
		log.Errorf("failed to check whether zpool [%s] is imported: %s", pool, err)
		return verdict.New(verdict.Again)
	}
	if imported {
		log.Errorf("zpool [%s] already imported", pool)
		return verdict.New(verdict.InvalidInput)
	}

	pools, err := client.SearchImport(ctx, pool)
	if err != nil {
		log.Errorf("failed to search zpool [%s]: %s", pool, err)
		return verdict.New(verdict.Again)
	}
	switch len(pools) {
	case 0:
		log.Errorf("no zpool with name [%s] found", pool)
		return verdict.New(verdict.InvalidInput)
	case 1:
	default:
		log.Errorf("multiple zpool with name [%s] found", pool)
		return verdict.New(verdict.InvalidInput)
	}

	return c.classify(ctx, client, pools[0])
}

func (c *Classifier) classify(ctx context.Context, client Client, p ImportablePool) verdict.Result {
	o, ok := statusTable[p.Status]
	if !ok {
		o = statusTable[StatusUnknown]
	}
	log.Debugf("zpool [%s] id [%s] state [%s] import status [%s]", p.Name, p.ID, p.State, p.Status)

	switch p.Status {
	case StatusHostIDActive:
		log.Errorf("zpool [%s] is currently imported by another system [%s]", p.Name, p.Holder)
		return verdict.OccupiedBy(p.Holder)
	case StatusHostIDMismatch:
		hostname, err := client.LastHostname(ctx, p.Name)
		if err != nil {
			log.Warnf("failed to get the last host of zpool [%s]: %s", p.Name, err)
			hostname = DefaultLastHostname
		}
		log.Errorf("zpool [%s]: "+o.messages[0], p.Name, hostname)
	case StatusErrata:
		log.Errorf("zpool [%s]: "+o.messages[0], p.Name, p.Errata)
	case StatusUnknown:
		log.Errorf("zpool [%s]: %s: %s", p.Name, o.messages[0], p.StatusText)
	default:
		for _, m := range o.messages {
			log.Errorf("zpool [%s]: %s", p.Name, m)
		}
	}

	return verdict.New(VerdictOf(p.Status))
}
