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

package configuration

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/coral-ha/clownf"
	"github.com/coral-ha/clownf/utils"
	"github.com/coral-ha/clownf/utils/log"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// MMPMinCheckInterval is the floor applied to the recorded MMP check interval,
	// the same value the kernel uses for EXT4_MMP_MIN_CHECK_INTERVAL.
	MMPMinCheckInterval = 5
	// MMPMaxCheckInterval caps the configurable floor so a check always finishes in bounded time
	MMPMaxCheckInterval = 300

	DefaultCommandTimeout = 5 * time.Minute
)

var logLevels = []string{"error", "warn", "info", "debug"}

var opt = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
))

// Storage holds the tunables of the storage checker
type Storage struct {
	LogLevel string `json:"logLevel" mapstructure:"logLevel"`
	LogFile  string `json:"logFile" mapstructure:"logFile"`
	// MMPMinCheckInterval in seconds, may raise but never lower the kernel floor
	MMPMinCheckInterval int           `json:"mmpMinCheckInterval" mapstructure:"mmpMinCheckInterval"`
	ZpoolCmd            string        `json:"zpoolCmd" mapstructure:"zpoolCmd"`
	ZdbCmd              string        `json:"zdbCmd" mapstructure:"zdbCmd"`
	ZfsDevice           string        `json:"zfsDevice" mapstructure:"zfsDevice"`
	ImportSearchDirs    []string      `json:"importSearchDirs" mapstructure:"importSearchDirs"`
	ImportCacheFile     string        `json:"importCacheFile" mapstructure:"importCacheFile"`
	CommandTimeout      time.Duration `json:"commandTimeout" mapstructure:"commandTimeout"`
	MetricsTextfile     string        `json:"metricsTextfile" mapstructure:"metricsTextfile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFile", "")
	v.SetDefault("mmpMinCheckInterval", MMPMinCheckInterval)
	v.SetDefault("zpoolCmd", clownf.DefaultZpoolCmd)
	v.SetDefault("zdbCmd", clownf.DefaultZdbCmd)
	v.SetDefault("zfsDevice", clownf.DefaultZfsDevice)
	v.SetDefault("importSearchDirs", []string{})
	v.SetDefault("importCacheFile", "")
	v.SetDefault("commandTimeout", DefaultCommandTimeout.String())
	v.SetDefault("metricsTextfile", "")
}

// Load reads the configuration. With an empty path the default directory is
// searched and a missing file is not an error; an explicit path must exist.
// CLOWNF_* environment variables override both.
func Load(path string) (*Storage, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(clownf.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.AddConfigPath(clownf.DefaultConfigPath)
		v.SetConfigName(clownf.DefaultConfigName)
		v.SetConfigType("json")
	} else {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("json")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to get the configuration: %w", err)
		}
		log.Debugf("no configuration file under %s, using defaults", clownf.DefaultConfigPath)
	} else {
		log.Debugf("loaded configuration from %s", v.ConfigFileUsed())
	}

	storage := &Storage{}
	if err := v.Unmarshal(storage, opt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the configuration: %w", err)
	}

	if err := validate(storage); err != nil {
		return nil, fmt.Errorf("failed to validate the configuration: %w", err)
	}
	return storage, nil
}

func validate(s *Storage) error {
	var cmdRegexp = regexp.MustCompile(`^[A-Za-z0-9/._-]+$`)

	if !utils.ContainsFold(logLevels, s.LogLevel) {
		return fmt.Errorf("logLevel must be one of %s: %s", strings.Join(logLevels, "/"), s.LogLevel)
	}
	if s.MMPMinCheckInterval > MMPMaxCheckInterval {
		return fmt.Errorf("mmpMinCheckInterval must not exceed %d seconds: %d", MMPMaxCheckInterval, s.MMPMinCheckInterval)
	}
	for _, c := range []string{s.ZpoolCmd, s.ZdbCmd} {
		if !cmdRegexp.MatchString(c) {
			return fmt.Errorf("invalid command name: %q", c)
		}
	}
	if s.ZfsDevice == "" {
		return errors.New("zfsDevice should not be empty")
	}
	if s.CommandTimeout <= 0 {
		return fmt.Errorf("commandTimeout must be positive: %s", s.CommandTimeout)
	}
	for _, dir := range s.ImportSearchDirs {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("import search dir must be an absolute path: %s", dir)
		}
	}
	// zpool import refuses -c together with -d
	if len(s.ImportSearchDirs) > 0 && s.ImportCacheFile != "" {
		return errors.New("importSearchDirs and importCacheFile are mutually exclusive")
	}
	return nil
}

// MinCheckInterval MMP interval floor in seconds, never below the kernel minimum
func (s *Storage) MinCheckInterval() int {
	interval := s.MMPMinCheckInterval
	if interval < MMPMinCheckInterval {
		if interval != 0 {
			log.Warnf("mmpMinCheckInterval %d is below the minimum, using %d", interval, MMPMinCheckInterval)
		}
		interval = MMPMinCheckInterval
	}
	return interval
}
