package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	runName    string
	runEnv     map[string]string
	runLabels  map[string]string
	runPorts   []string
	runMemory  string
	runTty     bool
	runWorkdir string
	runWait    bool

	psAll bool

	stopRemove bool
	rmForce    bool

	logsFollow     bool
	logsTimestamps bool
	logsTail       string

	cleanupScope string
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show Docker engine information",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

var runCmd = &cobra.Command{
	Use:   "run <image> [command]",
	Short: "Create and start a labelled test container",
	Long: `Create and start a detached test container. The command is split
with shell quoting rules, e.g. cicdctl run alpine "echo 'hello world'".`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRun,
}

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List containers",
	Args:  cobra.NoArgs,
	RunE:  runPs,
}

var stopCmd = &cobra.Command{
	Use:   "stop <id>...",
	Short: "Stop one or more containers",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStop,
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Remove one or more containers",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRm,
}

var logsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Print the logs of a container",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

var waitCmd = &cobra.Command{
	Use:   "wait <id>",
	Short: "Block until a container exits and print its exit code",
	Args:  cobra.ExactArgs(1),
	RunE:  runWaitCmd,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove all test containers",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(infoCmd, runCmd, psCmd, stopCmd, rmCmd, logsCmd, waitCmd, cleanupCmd)

	runCmd.Flags().StringVar(&runName, "name", "", "container name (a stale test container with this name is replaced)")
	runCmd.Flags().StringToStringVarP(&runEnv, "env", "e", nil, "environment variables (KEY=VALUE)")
	runCmd.Flags().StringToStringVarP(&runLabels, "label", "l", nil, "extra labels (KEY=VALUE)")
	runCmd.Flags().StringSliceVarP(&runPorts, "publish", "p", nil, "publish ports (e.g. 8080:80/tcp)")
	runCmd.Flags().StringVarP(&runMemory, "memory", "m", "", "memory limit (e.g. 256m)")
	runCmd.Flags().BoolVarP(&runTty, "tty", "t", false, "allocate a pseudo-TTY")
	runCmd.Flags().StringVarP(&runWorkdir, "workdir", "w", "", "working directory inside the container")
	runCmd.Flags().BoolVar(&runWait, "wait", false, "wait for the container to exit and print its logs")

	psCmd.Flags().BoolVarP(&psAll, "all", "a", false, "include stopped containers")

	stopCmd.Flags().BoolVar(&stopRemove, "rm", false, "remove the containers after stopping them")
	rmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, "kill running containers before removing")

	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "stream logs until the container exits")
	logsCmd.Flags().BoolVar(&logsTimestamps, "timestamps", false, "prefix each line with its timestamp")
	logsCmd.Flags().StringVar(&logsTail, "tail", "", "number of lines to show from the end")

	cleanupCmd.Flags().StringVar(&cleanupScope, "scope", "all", "what to remove: all or session")
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()

	info, err := mgr.Info(ctx)
	if err != nil {
		return err
	}
	if ok, err := printStructured(os.Stdout, info); ok {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Server Version", info.ServerVersion)
	table.Append("OS", info.OperatingSystem)
	table.Append("Architecture", info.Architecture)
	table.Append("CPUs", fmt.Sprint(info.NCPU))
	table.Append("Memory", units.BytesSize(float64(info.MemTotal)))
	table.Append("Containers", fmt.Sprintf("%d (%d running, %d paused, %d stopped)",
		info.Containers, info.ContainersRunning, info.ContainersPaused, info.ContainersStopped))
	table.Append("Images", fmt.Sprint(info.Images))
	table.Render()
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	spec := domain.ContainerSpec{
		Image:      args[0],
		Name:       runName,
		Env:        runEnv,
		Labels:     runLabels,
		Ports:      runPorts,
		Memory:     runMemory,
		Tty:        runTty,
		WorkingDir: runWorkdir,
	}
	if len(args) > 1 {
		spec.Command = args[1]
	}

	ctx := cmd.Context()
	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()

	c, err := mgr.CreateTestContainer(ctx, spec)
	if err != nil {
		return err
	}
	if !runWait {
		if ok, err := printStructured(os.Stdout, c); ok {
			return err
		}
		fmt.Println(c.ID)
		return nil
	}

	code, err := mgr.WaitContainer(ctx, c.ID)
	if err != nil {
		return err
	}
	logs, err := mgr.GetContainerLogs(ctx, c.ID, domain.LogOptions{})
	if err != nil {
		return err
	}
	fmt.Print(logs)
	if code != 0 {
		return fmt.Errorf("container %s exited with code %d", c.ShortID(), code)
	}
	return nil
}

func runPs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()

	containers, err := mgr.ListContainers(ctx, psAll)
	if err != nil {
		return err
	}
	if ok, err := printStructured(os.Stdout, containers); ok {
		return err
	}

	if len(containers) == 0 {
		fmt.Println("No containers")
		return nil
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Image", "State", "Status", "Test")
	for _, c := range containers {
		test := ""
		if c.IsTest() {
			test = "yes"
		}
		table.Append(c.ShortID(), c.Name, c.Image, c.State, c.Status, test)
	}
	table.Render()
	fmt.Printf("\nTotal containers: %d\n", len(containers))
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()

	for _, id := range args {
		if err := mgr.StopContainer(ctx, id); err != nil {
			return err
		}
		if stopRemove {
			if err := mgr.RemoveContainer(ctx, id, false); err != nil {
				return err
			}
		}
		fmt.Println(id)
	}
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()

	for _, id := range args {
		if err := mgr.RemoveContainer(ctx, id, rmForce); err != nil {
			return err
		}
		fmt.Println(id)
	}
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if logsFollow {
		return mgr.FollowLogs(ctx, args[0], os.Stdout, os.Stderr)
	}
	logs, err := mgr.GetContainerLogs(ctx, args[0], domain.LogOptions{
		Timestamps: logsTimestamps,
		Tail:       logsTail,
	})
	if err != nil {
		return err
	}
	fmt.Print(logs)
	return nil
}

func runWaitCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()

	code, err := mgr.WaitContainer(ctx, args[0])
	if err != nil {
		return err
	}
	if ok, err := printStructured(os.Stdout, map[string]any{"id": args[0], "exit_code": code}); ok {
		return err
	}
	fmt.Println(code)
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	scope := domain.ParseCleanupScope(strings.ToLower(cleanupScope))

	ctx := cmd.Context()
	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()

	n, err := mgr.CleanupTestContainers(ctx, scope)
	if ok, perr := printStructured(os.Stdout, map[string]any{"removed": n, "scope": scope.String()}); ok {
		if perr != nil {
			return perr
		}
	} else {
		fmt.Printf("Removed %d test containers\n", n)
	}
	return err
}
