// Copyright 2026 The Vajra Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures the logger. The field names double as flag names under
// the "log." prefix and as keys of the "log" config section.
type Options struct {
	// Name is prepended to every logger name.
	Name string `json:"name,omitempty" mapstructure:"name"`

	// Level is one of debug, info, warn or error.
	Level string `json:"level,omitempty" mapstructure:"level"`

	Format        string `json:"format,omitempty" mapstructure:"format"`
	EnableColor   bool   `json:"enable-color,omitempty" mapstructure:"enable-color"`
	DisableCaller bool   `json:"disable-caller,omitempty" mapstructure:"disable-caller"`

	// CallerSkip is the number of wrapper frames hidden from the caller field.
	CallerSkip int `json:"caller-skip,omitempty" mapstructure:"caller-skip"`

	// OutputPaths are file paths or the names stdout and stderr.
	OutputPaths []string `json:"output-paths,omitempty" mapstructure:"output-paths"`
}

// NewOptions returns console logging at info level to stdout.
func NewOptions() *Options {
	return &Options{
		Level:       zapcore.InfoLevel.String(),
		Format:      FormatConsole,
		EnableColor: true,
		CallerSkip:  2, // package func + method
		OutputPaths: []string{"stdout"},
	}
}

// Validate checks the level and format names.
func (o *Options) Validate() []error {
	var errs []error
	if _, err := zapcore.ParseLevel(o.Level); err != nil {
		errs = append(errs, fmt.Errorf("--log.level: %w", err))
	}
	if !slices.Contains([]string{FormatConsole, FormatJSON}, o.Format) {
		errs = append(errs, fmt.Errorf("--log.format must be %q or %q, got %q", FormatConsole, FormatJSON, o.Format))
	}
	if o.CallerSkip < 0 {
		errs = append(errs, errors.New("--log.caller-skip must not be negative"))
	}
	return errs
}

// AddFlags binds the options to fs under the "log." prefix.
func (o *Options) AddFlags(fs *pflag.FlagSet, _ ...string) {
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum level to log: debug, info, warn or error.")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log encoding, console or json.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Where to write logs: stdout, stderr or file paths.")
	fs.StringVar(&o.Name, "log.name", o.Name, "Name prepended to every logger.")
	fs.BoolVar(&o.EnableColor, "log.enable-color", o.EnableColor, "Colorize levels in console output.")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Omit the file:line caller field.")
	fs.IntVar(&o.CallerSkip, "log.caller-skip", o.CallerSkip, "Wrapper frames to skip when reporting the caller.")
}
