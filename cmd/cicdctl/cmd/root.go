package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	"github.com/melih/docker-cicd-manager/internal/adapters/docker"
	"github.com/melih/docker-cicd-manager/internal/config"
	"github.com/melih/docker-cicd-manager/internal/logging"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	cfgFile      string
	dockerHost   string
	logLevel     string
	outputFormat string
	sessionID    string

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cicdctl",
	Short: "Manage test containers on a Docker engine",
	Long: `cicdctl creates, inspects and cleans up labelled test containers
on a Docker engine, and runs container suites for CI/CD pipelines.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dockerHost, "docker-host", "", "docker daemon address (default from DOCKER_HOST)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default from config or info)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "session id stamped on created containers (default random)")
}

// initConfig loads .env, the config file and environment, then applies flags.
func initConfig() error {
	switch outputFormat {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("invalid output format %q (want table, json or yaml)", outputFormat)
	}

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if dockerHost != "" {
		c.Docker.Host = dockerHost
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	logging.Setup(c.Log.Level, c.Log.Format, os.Stderr)
	cfg = c
	return nil
}

// newEngine creates the SDK client and waits for the daemon to answer.
func newEngine(ctx context.Context) (*client.Client, error) {
	engine, err := docker.NewEngine(docker.EngineConfig{Host: cfg.Docker.Host, APIVersion: cfg.Docker.APIVersion})
	if err != nil {
		return nil, err
	}
	if err := docker.Connect(ctx, engine, cfg.Docker.ConnectRetries, 500*time.Millisecond); err != nil {
		engine.Close()
		return nil, fmt.Errorf("docker daemon unavailable: %w", err)
	}
	return engine, nil
}

// newManager connects to the daemon and returns a manager owning the client.
func newManager(ctx context.Context) (*docker.Manager, error) {
	mgr, _, err := newManagerWithEngine(ctx)
	return mgr, err
}

func newManagerWithEngine(ctx context.Context) (*docker.Manager, *client.Client, error) {
	policy, err := docker.ParsePullPolicy(cfg.Docker.PullPolicy)
	if err != nil {
		return nil, nil, err
	}
	engine, err := newEngine(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts := []docker.Option{
		docker.WithLogger(logging.Component("docker")),
		docker.WithStopTimeout(cfg.Docker.StopTimeout),
		docker.WithPullPolicy(policy),
	}
	if sessionID != "" {
		opts = append(opts, docker.WithSession(sessionID))
	}
	return docker.NewManager(engine, opts...), engine, nil
}

// printStructured writes v as JSON or YAML and reports whether it did.
// Table output is left to the caller.
func printStructured(w io.Writer, v any) (bool, error) {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}
