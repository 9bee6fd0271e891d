// Package scenario runs sequences of manager operations: container suites,
// a full lifecycle check and error-path checks.
package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/melih/docker-cicd-manager/internal/core/ports"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const defaultWaitTimeout = 2 * time.Minute

// Result is the outcome of one container in a suite.
type Result struct {
	Container domain.Container `json:"container" yaml:"container"`
	ExitCode  int64            `json:"exit_code" yaml:"exit_code"`
	Logs      string           `json:"logs" yaml:"logs"`
}

// Report summarizes a run.
type Report struct {
	Suite   string             `json:"suite" yaml:"suite"`
	Engine  *domain.EngineInfo `json:"engine,omitempty" yaml:"engine,omitempty"`
	Results []Result           `json:"results" yaml:"results"`
	Listed  []domain.Container `json:"listed,omitempty" yaml:"listed,omitempty"`
	Cleaned int                `json:"cleaned" yaml:"cleaned"`
}

// Runner drives a ContainerService through scenarios.
type Runner struct {
	svc ports.ContainerService
	log *logrus.Entry

	// WaitTimeout bounds how long a run waits for its containers to exit.
	WaitTimeout time.Duration
	// Scope selects what the final cleanup removes.
	Scope domain.CleanupScope
}

// NewRunner returns a runner over svc. A nil log uses the standard logger.
func NewRunner(svc ports.ContainerService, log *logrus.Entry) *Runner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{
		svc:         svc,
		log:         log.WithField("component", "scenario"),
		WaitTimeout: defaultWaitTimeout,
		Scope:       domain.ScopeAll,
	}
}

func (r *Runner) cleanup(ctx context.Context, report *Report, retErr *error) {
	n, err := r.svc.CleanupTestContainers(context.WithoutCancel(ctx), r.Scope)
	if report != nil {
		report.Cleaned = n
	}
	r.log.WithField("removed", n).Info("cleaned up test containers")
	*retErr = multierr.Append(*retErr, err)
}

func (r *Runner) run(ctx context.Context, spec domain.ContainerSpec) (Result, error) {
	c, err := r.svc.CreateTestContainer(ctx, spec)
	if err != nil {
		return Result{}, err
	}
	log := r.log.WithFields(logrus.Fields{"container": c.ShortID(), "name": c.Name})
	log.Info("container created")

	ctx, cancel := context.WithTimeout(ctx, r.WaitTimeout)
	defer cancel()
	code, err := r.svc.WaitContainer(ctx, c.ID)
	if err != nil {
		return Result{Container: c}, err
	}

	logs, err := r.svc.GetContainerLogs(ctx, c.ID, domain.LogOptions{})
	if err != nil {
		return Result{Container: c, ExitCode: code}, err
	}
	log.WithField("exit_code", code).Infof("container logs: %s", strings.TrimSpace(logs))
	return Result{Container: c, ExitCode: code, Logs: logs}, nil
}

// Basic reports engine info, runs the basic suite one container at a time,
// lists every container and cleans up.
func (r *Runner) Basic(ctx context.Context) (report *Report, retErr error) {
	suite, err := Builtin("basic")
	if err != nil {
		return nil, err
	}
	report = &Report{Suite: suite.Name}
	defer r.cleanup(ctx, report, &retErr)

	info, err := r.svc.Info(ctx)
	if err != nil {
		return report, err
	}
	report.Engine = &info
	r.log.WithFields(logrus.Fields{
		"server_version": info.ServerVersion,
		"containers":     info.Containers,
	}).Info("docker engine info")

	for _, spec := range suite.Containers {
		res, err := r.run(ctx, spec)
		if err != nil {
			return report, err
		}
		report.Results = append(report.Results, res)
	}

	containers, err := r.svc.ListContainers(ctx, true)
	if err != nil {
		return report, err
	}
	report.Listed = containers
	r.log.Infof("found %d containers", len(containers))
	for _, c := range containers {
		r.log.Infof("  - %s: %s (%s)", c.ShortID(), c.Name, c.State)
	}
	return report, nil
}

// RunSuite creates every container of the suite, waits for all of them
// concurrently, collects their logs and cleans up.
func (r *Runner) RunSuite(ctx context.Context, suite Suite) (report *Report, retErr error) {
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	report = &Report{Suite: suite.Name, Results: make([]Result, len(suite.Containers))}
	defer r.cleanup(ctx, report, &retErr)

	for i, spec := range suite.Containers {
		r.log.WithField("name", spec.Name).Info("creating container")
		c, err := r.svc.CreateTestContainer(ctx, spec)
		if err != nil {
			return report, err
		}
		report.Results[i].Container = c
	}

	r.log.Info("waiting for containers to complete")
	waitCtx, cancel := context.WithTimeout(ctx, r.WaitTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(waitCtx)
	for i := range report.Results {
		res := &report.Results[i]
		g.Go(func() error {
			code, err := r.svc.WaitContainer(gctx, res.Container.ID)
			res.ExitCode = code
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	for i := range report.Results {
		res := &report.Results[i]
		logs, err := r.svc.GetContainerLogs(ctx, res.Container.ID, domain.LogOptions{})
		if err != nil {
			return report, err
		}
		res.Logs = logs
		r.log.Infof("container %d logs: %s", i+1, strings.TrimSpace(logs))
	}
	return report, nil
}

// Lifecycle starts a long-running container, checks it is listed as
// running, stops it and checks it is listed as exited.
func (r *Runner) Lifecycle(ctx context.Context) (retErr error) {
	defer r.cleanup(ctx, nil, &retErr)

	r.log.Info("creating long-running container")
	c, err := r.svc.CreateTestContainer(ctx, domain.ContainerSpec{
		Image:   "busybox:latest",
		Command: "sleep 30",
		Name:    "lifecycle-test",
	})
	if err != nil {
		return err
	}

	if n, err := r.countListed(ctx, c.ID, false, domain.StateRunning); err != nil {
		return err
	} else if n != 1 {
		return fmt.Errorf("container %s listed %d times as running, want 1", c.ShortID(), n)
	}
	r.log.Info("container is running")

	r.log.Info("stopping container")
	if err := r.svc.StopContainer(ctx, c.ID); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, r.WaitTimeout)
	defer cancel()
	if _, err := r.svc.WaitContainer(waitCtx, c.ID); err != nil {
		return err
	}

	if n, err := r.countListed(ctx, c.ID, true, domain.StateExited); err != nil {
		return err
	} else if n != 1 {
		return fmt.Errorf("container %s listed %d times as exited, want 1", c.ShortID(), n)
	}
	r.log.Info("container stopped successfully")
	return nil
}

func (r *Runner) countListed(ctx context.Context, id string, all bool, state string) (int, error) {
	containers, err := r.svc.ListContainers(ctx, all)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range containers {
		if c.ID == id && c.State == state {
			n++
		}
	}
	return n, nil
}

// ErrorHandling checks that operations on a missing image or container fail.
// An operation that unexpectedly succeeds is reported as an error.
func (r *Runner) ErrorHandling(ctx context.Context) (retErr error) {
	defer r.cleanup(ctx, nil, &retErr)

	checks := []struct {
		name string
		fn   func() error
	}{
		{"invalid image", func() error {
			_, err := r.svc.CreateTestContainer(ctx, domain.ContainerSpec{
				Image:   "non-existent-image:latest",
				Command: "echo 'This should fail'",
			})
			return err
		}},
		{"logs of missing container", func() error {
			_, err := r.svc.GetContainerLogs(ctx, "non-existent-container", domain.LogOptions{})
			return err
		}},
		{"stop of missing container", func() error {
			return r.svc.StopContainer(ctx, "non-existent-container")
		}},
	}

	var errs error
	for _, check := range checks {
		r.log.Infof("testing %s", check.name)
		if err := check.fn(); err != nil {
			r.log.WithError(err).Info("expected error caught")
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: expected an error, got none", check.name))
	}
	return errs
}

// Advanced runs the advanced suite, the lifecycle check and the error
// checks in order. A failing step is logged and the next one still runs.
func (r *Runner) Advanced(ctx context.Context) error {
	var errs error

	r.log.Info("1. testing multiple containers")
	if suite, err := Builtin("advanced"); err != nil {
		errs = multierr.Append(errs, err)
	} else if report, err := r.RunSuite(ctx, suite); err != nil {
		r.log.WithError(err).Error("error in multiple containers test")
		errs = multierr.Append(errs, fmt.Errorf("multiple containers: %w", err))
	} else {
		r.log.Infof("cleaned up %d containers", report.Cleaned)
	}

	r.log.Info("2. testing container lifecycle")
	if err := r.Lifecycle(ctx); err != nil {
		r.log.WithError(err).Error("error in lifecycle test")
		errs = multierr.Append(errs, fmt.Errorf("lifecycle: %w", err))
	}

	r.log.Info("3. testing error handling")
	if err := r.ErrorHandling(ctx); err != nil {
		r.log.WithError(err).Error("unexpected result in error handling test")
		errs = multierr.Append(errs, fmt.Errorf("error handling: %w", err))
	}

	return errs
}
