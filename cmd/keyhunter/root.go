package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Amr-9/KeyHunter/internal/config"
	"github.com/Amr-9/KeyHunter/pkg/search"
)

// flags holds the raw command line values. Only flags the user set override the
// configuration file.
type flags struct {
	configFile string

	keyspace     string
	share        string
	compressed   bool
	uncompressed bool
	both         bool

	targetsFile string
	outputFile  string
	devices     []int

	stride           string
	randomStrideBits uint
	continueAfterEnd bool

	checkpointFile     string
	checkpointInterval time.Duration
	resume             bool
	statusInterval     time.Duration

	workers int
	points  int

	metricsAddr string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "keyhunter [flags] [ADDRESS...]",
		Short: "Search private key ranges for known Bitcoin addresses",
		Long: `keyhunter walks a range of secp256k1 private keys with a fixed or random
stride and reports every key whose P2PKH address is one of the targets.

Keys are hexadecimal. A keyspace is START:END, START:+COUNT, START or :END.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd, cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configFile, "config", "", "YAML configuration file")
	fs.StringVar(&f.keyspace, "keyspace", "", "key range to search (START:END, START:+COUNT, START, :END)")
	fs.StringVar(&f.share, "share", "", "search only share M of N of the keyspace (M/N)")
	fs.BoolVarP(&f.compressed, "compressed", "c", false, "search compressed keys")
	fs.BoolVarP(&f.uncompressed, "uncompressed", "u", false, "search uncompressed keys")
	fs.BoolVar(&f.both, "both", false, "search both compressed and uncompressed keys")
	fs.StringVarP(&f.targetsFile, "in", "i", "", "read target addresses from a file, one per line")
	fs.StringVarP(&f.outputFile, "out", "o", "", "append found keys to a file")
	fs.IntSliceVarP(&f.devices, "device", "d", nil, "device id to use, repeatable")
	fs.StringVar(&f.stride, "stride", "", "hex increment between keys")
	fs.UintVar(&f.randomStrideBits, "random-stride", 0, "draw a random stride of up to BITS bits")
	fs.BoolVar(&f.continueAfterEnd, "continue-after-end", false, "draw a new random stride and start over when the keyspace ends")
	fs.StringVar(&f.checkpointFile, "checkpoint", "", "save progress to a file")
	fs.DurationVar(&f.checkpointInterval, "checkpoint-interval", 0, "how often progress is saved")
	fs.BoolVar(&f.resume, "resume", false, "continue from the checkpoint file")
	fs.DurationVar(&f.statusInterval, "status-interval", 0, "how often the status line is refreshed")
	fs.IntVar(&f.workers, "workers", 0, "CPU worker goroutines (default: number of CPUs)")
	fs.IntVar(&f.points, "points", 0, "keys per CPU step")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(newDevicesCmd(), newVerifyCmd())
	return cmd
}

// load builds the configuration: file (or defaults), then flags, then positional
// addresses.
func (f *flags) load(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		var err error
		if cfg, err = config.Load(f.configFile); err != nil {
			return nil, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("keyspace") {
		cfg.Keyspace = f.keyspace
	}
	if changed("share") {
		cfg.Share = f.share
	}
	switch {
	case f.both || (f.compressed && f.uncompressed):
		cfg.Compression = search.Both.String()
	case f.compressed:
		cfg.Compression = search.Compressed.String()
	case f.uncompressed:
		cfg.Compression = search.Uncompressed.String()
	}
	if changed("in") {
		cfg.TargetsFile = f.targetsFile
	}
	if changed("out") {
		cfg.OutputFile = f.outputFile
	}
	if changed("device") {
		cfg.Devices = f.devices
	}
	if changed("stride") {
		cfg.Stride = f.stride
	}
	if changed("random-stride") {
		cfg.RandomStrideBits = f.randomStrideBits
	}
	if changed("continue-after-end") {
		cfg.ContinueAfterEnd = f.continueAfterEnd
	}
	if changed("checkpoint") {
		cfg.CheckpointFile = f.checkpointFile
	}
	if changed("checkpoint-interval") {
		cfg.CheckpointInterval = f.checkpointInterval
	}
	if changed("resume") {
		cfg.Resume = f.resume
	}
	if changed("status-interval") {
		cfg.StatusInterval = f.statusInterval
	}
	if changed("workers") {
		cfg.CPU.Workers = f.workers
	}
	if changed("points") {
		cfg.CPU.Points = f.points
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if len(args) > 0 {
		cfg.Targets = args
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
