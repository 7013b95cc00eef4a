package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/vaultguard/internal/ir"
)

// VersionInfo reports the processor and record encoding versions.
type VersionInfo struct {
	Processor string `json:"processor"`
	Record    string `json:"record_encoding"`
}

func (v VersionInfo) renderText(w io.Writer, _ bool) {
	fmt.Fprintf(w, "vaultguard %s (record encoding v%s)\n", v.Processor, v.Record)
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print version information",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.formatter(cmd).Success(VersionInfo{
				Processor: ir.ProcessorVersion,
				Record:    ir.RecordVersion,
			})
		},
	}
}
