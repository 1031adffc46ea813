// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package cellar

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tochemey/cellar/log"
)

// FileConfig is the YAML form of the manager settings.
//
//	log:
//	  level: info
//	groups:
//	  pid: cellar.groups
//	  list_property: groups
//	node:
//	  pid: cellar.node
//	reserved_prefixes: [service., runtime.]
//	resync:
//	  interval: 1m
//	sync_concurrency: 4
//	shutdown_timeout: 5s
//	operation_timeout: 5s
type FileConfig struct {
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Groups struct {
		PID          string `yaml:"pid"`
		ListProperty string `yaml:"list_property"`
	} `yaml:"groups"`
	Node struct {
		PID string `yaml:"pid"`
	} `yaml:"node"`
	ReservedPrefixes []string `yaml:"reserved_prefixes"`
	Resync           struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"resync"`
	SyncConcurrency  int           `yaml:"sync_concurrency"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// LoadConfigFile reads and parses a YAML configuration file
func LoadConfigFile(path string) (*FileConfig, error) {
	bytea, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cellar: failed to read config file %s: %w", path, err)
	}
	return ParseConfig(bytea)
}

// ParseConfig parses a YAML configuration document
func ParseConfig(bytea []byte) (*FileConfig, error) {
	fileConfig := new(FileConfig)
	if err := yaml.Unmarshal(bytea, fileConfig); err != nil {
		return nil, fmt.Errorf("cellar: invalid config: %w", err)
	}
	if log.ParseLevel(fileConfig.Log.Level) == log.InvalidLevel {
		return nil, fmt.Errorf("cellar: invalid log level %q", fileConfig.Log.Level)
	}
	return fileConfig, nil
}

// Options converts the set fields into manager options
func (f *FileConfig) Options() []Option {
	var opts []Option
	if f.Log.Level != "" {
		opts = append(opts, WithLogger(log.NewZap(log.ParseLevel(f.Log.Level), os.Stdout)))
	}
	if f.Groups.PID != "" {
		opts = append(opts, WithGroupsPID(f.Groups.PID))
	}
	if f.Groups.ListProperty != "" {
		opts = append(opts, WithGroupsListProperty(f.Groups.ListProperty))
	}
	if f.Node.PID != "" {
		opts = append(opts, WithNodePID(f.Node.PID))
	}
	if f.ReservedPrefixes != nil {
		opts = append(opts, WithReservedPrefixes(f.ReservedPrefixes...))
	}
	if f.Resync.Interval != 0 {
		opts = append(opts, WithResyncInterval(f.Resync.Interval))
	}
	if f.SyncConcurrency != 0 {
		opts = append(opts, WithSyncConcurrency(f.SyncConcurrency))
	}
	if f.ShutdownTimeout != 0 {
		opts = append(opts, WithShutdownTimeout(f.ShutdownTimeout))
	}
	if f.OperationTimeout != 0 {
		opts = append(opts, WithOperationTimeout(f.OperationTimeout))
	}
	return opts
}
