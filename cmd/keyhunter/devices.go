package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Amr-9/KeyHunter/internal/ui"
	"github.com/Amr-9/KeyHunter/pkg/device"
	"github.com/Amr-9/KeyHunter/pkg/device/cpu"
	"github.com/Amr-9/KeyHunter/pkg/device/opencl"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices a search can run on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(cmd.ErrOrStderr(), "warn")
			if err != nil {
				return err
			}
			infos, err := newManager(log).Devices()
			if err != nil {
				return err
			}
			ui.NewConsole(cmd.OutOrStdout()).PrintDevices(infos)
			return nil
		},
	}
}

// newManager registers the CPU backend, then the GPU backend when it is compiled in.
// The CPU always comes first, so device 0 is usable on every build.
func newManager(log logrus.FieldLogger) *device.Manager {
	backends := []device.Backend{cpu.NewBackend()}
	if gpu, err := opencl.NewBackend(); err != nil {
		log.WithError(err).Debug("OpenCL backend unavailable")
	} else {
		backends = append(backends, gpu)
	}
	return device.NewManager(backends...)
}
