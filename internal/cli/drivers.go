package cli

import (
	"github.com/spf13/cobra"

	"github.com/shaban/plughost"
	"github.com/shaban/plughost/devices"
	"github.com/shaban/plughost/logging"
)

type driverInfo struct {
	Name    string               `json:"name"`
	Devices []devices.DeviceInfo `json:"devices"`
}

func newDriversCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List audio drivers and their devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := NewPrinter(cmd.OutOrStdout(), g.json, g.quiet)
			e := plughost.New(plughost.DefaultOptions(), plughost.WithLogger(logging.Nop()))

			var out []driverInfo
			for i := 0; i < e.DriverCount(); i++ {
				d := driverInfo{Name: e.DriverName(i)}
				for _, name := range e.DriverDeviceNames(i) {
					d.Devices = append(d.Devices, e.DriverDeviceInfo(i, name))
				}
				out = append(out, d)
			}
			if printer.Mode == OutputJSON {
				return printer.JSON(out)
			}
			midiDriver := devices.MIDIDriverName()
			if midiDriver == "" {
				midiDriver = "none (build with -tags rtmidi)"
			}
			printer.Human("MIDI driver: %s", midiDriver)
			for _, d := range out {
				printer.Human("%s", d.Name)
				for _, info := range d.Devices {
					printer.Human("  %-12s in=%d out=%d buffers=%v rates=%v",
						info.Name, info.InputChannelCount, info.OutputChannelCount,
						info.SupportedBufferSizes, info.SupportedSampleRates)
					if len(info.MIDIInputs)+len(info.MIDIOutputs) > 0 {
						printer.Human("  %-12s midi in=%v out=%v", "", info.MIDIInputs, info.MIDIOutputs)
					}
				}
			}
			return nil
		},
	}
}
