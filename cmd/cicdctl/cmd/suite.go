package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/melih/docker-cicd-manager/internal/logging"
	"github.com/melih/docker-cicd-manager/internal/scenario"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	suiteTimeout time.Duration
	suiteScope   string
)

var suiteCmd = &cobra.Command{
	Use:   "suite",
	Short: "Run container suites",
}

var suiteRunCmd = &cobra.Command{
	Use:   "run <file|builtin>",
	Short: "Run a suite from a YAML file or a builtin suite (basic, advanced)",
	Long: `Create every container of the suite, wait for all of them to exit,
print their logs and remove the test containers.`,
	Args: cobra.ExactArgs(1),
	RunE: runSuite,
}

var demoCmd = &cobra.Command{
	Use:       "demo <basic|advanced>",
	Short:     "Run the basic or advanced example flow",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"basic", "advanced"},
	RunE:      runDemo,
}

func init() {
	rootCmd.AddCommand(suiteCmd, demoCmd)
	suiteCmd.AddCommand(suiteRunCmd)

	for _, c := range []*cobra.Command{suiteRunCmd, demoCmd} {
		c.Flags().DurationVar(&suiteTimeout, "timeout", 2*time.Minute, "how long to wait for containers to exit")
		c.Flags().StringVar(&suiteScope, "scope", "all", "what the final cleanup removes: all or session")
	}
}

func loadSuite(arg string) (scenario.Suite, error) {
	if _, err := os.Stat(arg); err == nil {
		return scenario.LoadSuiteFile(arg)
	}
	return scenario.Builtin(arg)
}

func newRunner(cmd *cobra.Command) (*scenario.Runner, func() error, error) {
	mgr, err := newManager(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	r := scenario.NewRunner(mgr, logging.Component("cicdctl").WithField("session", mgr.Session()))
	r.WaitTimeout = suiteTimeout
	r.Scope = domain.ParseCleanupScope(strings.ToLower(suiteScope))
	return r, mgr.Close, nil
}

func runSuite(cmd *cobra.Command, args []string) error {
	suite, err := loadSuite(args[0])
	if err != nil {
		return err
	}
	r, closeFn, err := newRunner(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := r.RunSuite(cmd.Context(), suite)
	if report != nil {
		if perr := printReport(report); perr != nil {
			return perr
		}
	}
	return err
}

func runDemo(cmd *cobra.Command, args []string) error {
	r, closeFn, err := newRunner(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	switch args[0] {
	case "basic":
		report, err := r.Basic(cmd.Context())
		if report != nil {
			if perr := printReport(report); perr != nil {
				return perr
			}
		}
		return err
	case "advanced":
		if err := r.Advanced(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Advanced example completed")
		return nil
	default:
		return fmt.Errorf("unknown demo %q (want basic or advanced)", args[0])
	}
}

func printReport(report *scenario.Report) error {
	if ok, err := printStructured(os.Stdout, report); ok {
		return err
	}

	if report.Engine != nil {
		fmt.Printf("Docker %s on %s, %d containers\n\n", report.Engine.ServerVersion,
			report.Engine.OperatingSystem, report.Engine.Containers)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Image", "Exit", "Logs")
	for _, res := range report.Results {
		table.Append(res.Container.ShortID(), res.Container.Name, res.Container.Image,
			fmt.Sprint(res.ExitCode), strings.TrimSpace(res.Logs))
	}
	table.Render()
	fmt.Printf("\nSuite %s: %d containers, cleaned up %d\n", report.Suite, len(report.Results), report.Cleaned)
	return nil
}
