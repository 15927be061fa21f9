package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Amr-9/KeyHunter/internal/checkpoint"
	"github.com/Amr-9/KeyHunter/internal/config"
	"github.com/Amr-9/KeyHunter/internal/metrics"
	"github.com/Amr-9/KeyHunter/internal/output"
	"github.com/Amr-9/KeyHunter/internal/ui"
	"github.com/Amr-9/KeyHunter/pkg/address"
	"github.com/Amr-9/KeyHunter/pkg/device"
	"github.com/Amr-9/KeyHunter/pkg/search"
)

// session is the state shared by the finders of one run, one per device.
type session struct {
	cfg     *config.Config
	log     *logrus.Logger
	runID   string
	mode    search.CompressionMode
	manager *device.Manager
	writer  *output.Writer
	metrics *metrics.Metrics
	cancel  context.CancelFunc

	mu      sync.Mutex
	console *ui.Console
	targets int
	found   map[string]struct{}
}

func run(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return err
	}

	if err := raisePriority(); err != nil {
		log.WithError(err).Debug("Unable to raise process priority")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ks, err := cfg.SearchKeyspace()
	if err != nil {
		return err
	}
	mode, err := search.ParseCompressionMode(cfg.Compression)
	if err != nil {
		return err
	}
	var stride *uint256.Int
	if cfg.RandomStrideBits == 0 {
		if stride, err = cfg.StrideValue(); err != nil {
			return err
		}
	}

	shares := []search.Keyspace{ks}
	if n := len(cfg.Devices); n > 1 {
		if shares, err = ks.Split(n); err != nil {
			return err
		}
	}

	s := &session{
		cfg:     cfg,
		log:     log,
		runID:   uuid.New().String(),
		mode:    mode,
		manager: newManager(log),
		cancel:  cancel,
		console: ui.NewConsole(cmd.OutOrStdout()),
		found:   make(map[string]struct{}),
	}
	if cfg.OutputFile != "" {
		s.writer = output.NewWriter(cfg.OutputFile)
	}
	if cfg.MetricsAddr != "" {
		s.metrics = metrics.New()
		go func() {
			if err := s.metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	s.console.PrintBanner(version)
	log.WithFields(logrus.Fields{
		"run":         s.runID,
		"keyspace":    ks.String(),
		"compression": mode.String(),
		"devices":     cfg.Devices,
	}).Info("Starting search")

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range cfg.Devices {
		i, id := i, id
		g.Go(func() error {
			return s.runDevice(gctx, id, shares[i], stride)
		})
	}
	err = g.Wait()

	s.mu.Lock()
	s.console.ClearLine()
	s.mu.Unlock()
	return err
}

// runDevice searches one keyspace share on one device until the finder returns.
func (s *session) runDevice(ctx context.Context, id int, ks search.Keyspace, stride *uint256.Int) error {
	cfg := s.cfg
	log := s.log.WithFields(logrus.Fields{"run": s.runID, "device": id})

	var cpPath string
	if cfg.CheckpointFile != "" {
		cpPath = checkpoint.PathFor(cfg.CheckpointFile, id, len(cfg.Devices))
	}

	random := cfg.RandomStrideBits > 0
	if cfg.Resume {
		cp, err := checkpoint.Load(cpPath)
		if err != nil {
			return err
		}
		if ks, err = cp.Keyspace(); err != nil {
			return fmt.Errorf("resume %s: %w", cpPath, err)
		}
		if stride, err = cp.StrideValue(); err != nil {
			return err
		}
		random = false
		log.WithFields(logrus.Fields{
			"run":    cp.RunID,
			"next":   ks.Start.Hex(),
			"stride": stride.Hex(),
		}).Info("Resuming from checkpoint")
	}

	dev, err := s.manager.Open(id, device.Options{Workers: cfg.CPU.Workers, Points: cfg.CPU.Points})
	if err != nil {
		return err
	}

	finder, err := search.New(dev, search.Config{
		Keyspace:         ks,
		Compression:      s.mode,
		Stride:           stride,
		RandomStride:     random,
		RandomStrideBits: cfg.RandomStrideBits,
		ContinueAfterEnd: cfg.ContinueAfterEnd,
		StatusInterval:   cfg.StatusInterval,
		Logger:           log,
	})
	if err != nil {
		return err
	}

	if cfg.TargetsFile != "" {
		err = finder.SetTargetsFile(cfg.TargetsFile)
	} else {
		err = finder.SetTargets(cfg.Targets)
	}
	if err != nil {
		return err
	}
	s.setTargets(finder.Targets())

	label := strconv.Itoa(id)
	last := search.Status{DeviceName: dev.Name()}
	lastSave := time.Now()

	finder.SetStatusCallback(func(st search.Status) {
		last = st
		s.mu.Lock()
		s.console.PrintStatus(st)
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.ObserveStatus(label, st)
		}
		if cpPath != "" && time.Since(lastSave) >= cfg.CheckpointInterval {
			s.save(log, cpPath, ks, st)
			lastSave = time.Now()
		}
	})
	finder.SetResultCallback(func(r search.Result) {
		s.report(log, label, r)
	})

	if err := finder.Init(); err != nil {
		return err
	}
	runErr := finder.Run(ctx)

	if cpPath != "" {
		last.NextKey = finder.NextKey()
		last.Stride = finder.Stride()
		last.Restrides = finder.Restrides()
		s.save(log, cpPath, ks, last)
	}
	if runErr != nil {
		return runErr
	}

	log.WithFields(logrus.Fields{
		"state":     finder.State().String(),
		"remaining": finder.Targets(),
		"next":      finder.NextKey().Hex(),
	}).Info("Search finished")
	return nil
}

// save writes a checkpoint. Failures are logged and the search goes on.
func (s *session) save(log logrus.FieldLogger, path string, ks search.Keyspace, st search.Status) {
	cp := checkpoint.New(s.runID, ks, s.mode, s.cfg.RandomStrideBits, st, time.Now())
	if err := checkpoint.Save(path, cp); err != nil {
		log.WithError(err).Warn("Unable to save checkpoint")
		return
	}
	log.WithField("next", cp.Next).Debug("Checkpoint saved")
}

// report publishes a found key on every configured sink.
func (s *session) report(log logrus.FieldLogger, label string, r search.Result) {
	wif, err := address.PrivateKeyToWIF(r.PrivateKey.Bytes32(), r.Compressed)
	if err != nil {
		log.WithError(err).Warn("Unable to encode WIF")
	}

	s.mu.Lock()
	s.console.PrintResult(r, wif)
	s.mu.Unlock()

	log.WithField("address", r.Address).Info("Found key")

	if s.writer != nil {
		if _, err := s.writer.Write(r); err != nil {
			log.WithError(err).Error("Unable to save result")
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveResult(label)
	}
	if s.markFound(r.Address) {
		log.Info("All targets found")
		s.cancel()
	}
}

func (s *session) setTargets(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = n
}

// markFound records addr and reports whether every target has now been found by
// some device.
func (s *session) markFound(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.found[addr] = struct{}{}
	return s.targets > 0 && len(s.found) >= s.targets
}
