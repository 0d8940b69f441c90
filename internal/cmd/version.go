package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var extended bool

type versionReport struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	Go        string `json:"go,omitempty"`
	Gofulmen  string `json:"gofulmen,omitempty"`
	Crucible  string `json:"crucible,omitempty"`
}

func (v versionReport) text() string {
	if v.Go == "" {
		return fmt.Sprintf("%s %s", v.Name, v.Version)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", v.Name, v.Version)
	fmt.Fprintf(&b, "Commit: %s\n", v.Commit)
	fmt.Fprintf(&b, "Built: %s\n", v.BuildDate)
	fmt.Fprintf(&b, "Go: %s\n\n", v.Go)
	fmt.Fprintf(&b, "Gofulmen: %s\n", v.Gofulmen)
	fmt.Fprintf(&b, "Crucible: %s", v.Crucible)
	return b.String()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for full details including Crucible and Go versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := GetAppIdentity()

		report := versionReport{Name: identity.BinaryName, Version: versionInfo.Version}
		if extended {
			version := crucible.GetVersion()
			report.Commit = versionInfo.Commit
			report.BuildDate = versionInfo.BuildDate
			report.Go = runtime.Version()
			report.Gofulmen = version.Gofulmen
			report.Crucible = version.Crucible
		}
		return writeOutput(cmd, report, report.text)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
	addOutputFlags(versionCmd)
}
