package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/usbcamd/usbcamd/internal/uvccontrol"
	"github.com/usbcamd/usbcamd/pkg/linuxav/v4l2"
)

// NewValidateCmd builds the validate subcommand: open the discovered
// (or named) output node, enumerate its format catalogue, and print
// what a host would see during PROBE/COMMIT negotiation.
func NewValidateCmd() *cobra.Command {
	var devicePath string
	var ignoreNodes []string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Probe the configured V4L2 output node and UVC gadget function",
		Long:  `Opens the gadget's video output node, enumerates its supported formats, frame sizes, and frame intervals, and prints them without starting the data plane.`,
		Run: func(_ *cobra.Command, _ []string) {
			runValidate(devicePath, ignoreNodes)
		},
	}

	cmd.Flags().StringVar(&devicePath, "device", "", "Video output node to probe (default: auto-discover)")
	cmd.Flags().StringSliceVar(&ignoreNodes, "ignore-nodes", nil, "Video nodes to skip during discovery")

	return cmd
}

func runValidate(devicePath string, ignoreNodes []string) {
	path := devicePath
	if path == "" {
		ignored := make(map[string]bool, len(ignoreNodes))
		for _, node := range ignoreNodes {
			ignored[node] = true
		}
		found, err := v4l2.FindOutputDevice(ignored)
		if err != nil {
			fmt.Fprintln(os.Stderr, "no usable output device found:", err)
			os.Exit(1)
		}
		path = found
	}

	device, err := v4l2.OpenOutput(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open output device failed:", err)
		os.Exit(1)
	}
	defer device.Close()

	catalogue, err := uvccontrol.BuildCatalogue(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build format catalogue failed:", err)
		os.Exit(1)
	}

	fmt.Printf("device: %s\n", path)
	if len(catalogue.Formats) == 0 {
		fmt.Println("no YUY2/MJPEG formats advertised")
		return
	}

	for _, format := range catalogue.Formats {
		fmt.Printf("format %d: %s\n", format.Index, v4l2.FormatFourCC(format.FourCC))
		for _, frame := range format.Frames {
			fmt.Printf("  frame %d: %dx%d\n", frame.Index, frame.Width, frame.Height)
			for _, interval := range frame.Intervals {
				fps := float64(uvccontrol.UnitsPerSecond) / float64(interval)
				fmt.Printf("    interval %d (100ns units, %.2f fps)\n", interval, fps)
			}
		}
	}

	if err := device.SubscribeUVCEvents(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: UVC event subscription failed:", err)
		return
	}
	fmt.Println("UVC gadget function: event subscription OK")
}
