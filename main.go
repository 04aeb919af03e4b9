package main

import (
	"github.com/spf13/cobra"
	"github.com/usbcamd/usbcamd/cmd"
	"github.com/usbcamd/usbcamd/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:     "usbcamd",
		Short:   "USB Video Class gadget device-side daemon",
		Version: version.String(),
	}

	root.AddCommand(cmd.NewRunCmd())
	root.AddCommand(cmd.NewValidateCmd())

	if err := root.Execute(); err != nil {
		root.PrintErrln(err)
	}
}
