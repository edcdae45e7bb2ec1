package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ent0n29/streambench/internal/logging"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	BaseURL   string
	LogLevel  string
	Words     int
	DelayMS   int
	Timeout   time.Duration
	logger    *zap.Logger
	validated bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "streamwatch",
		Short:         "Watch and benchmark token streams under different render schedules",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.validate()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.BaseURL, "base-url", "http://localhost:3000", "stream server base URL")
	flags.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	flags.IntVar(&opts.Words, "words", 200, "tokens per stream")
	flags.IntVar(&opts.DelayMS, "delay", 20, "milliseconds between tokens")
	flags.DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "overall deadline")

	root.AddCommand(watchCommand(opts))
	root.AddCommand(benchCommand(opts))
	root.AddCommand(loadCommand(opts))
	return root
}

func (o *globalOptions) validate() error {
	if o.validated {
		return nil
	}
	o.BaseURL = strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	if o.BaseURL == "" {
		return fmt.Errorf("--base-url is required")
	}
	if o.Words <= 0 {
		return fmt.Errorf("--words must be > 0")
	}
	if o.DelayMS <= 0 {
		return fmt.Errorf("--delay must be > 0")
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("--timeout must be > 0")
	}
	o.logger = logging.New(strings.ToLower(o.LogLevel), "console")
	o.validated = true
	return nil
}

func (o *globalOptions) delay() time.Duration {
	return time.Duration(o.DelayMS) * time.Millisecond
}
