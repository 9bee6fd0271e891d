package cmd

import (
	"fmt"
	"os"

	"github.com/melih/docker-cicd-manager/internal/adapters/builder"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/spf13/cobra"
)

var (
	buildImage      string
	buildRef        string
	buildDockerfile string
	buildDir        string
)

var buildCmd = &cobra.Command{
	Use:   "build [repo-url]",
	Short: "Build an image from a git repository or a local directory",
	Long: `Clone a git repository (shallow) and build an image from it, or build
from a local directory with --dir.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildImage, "tag", "t", "", "image tag to build (required)")
	buildCmd.Flags().StringVar(&buildRef, "ref", "", "branch to clone (default: remote HEAD)")
	buildCmd.Flags().StringVarP(&buildDockerfile, "file", "f", "", "Dockerfile path inside the context (default Dockerfile)")
	buildCmd.Flags().StringVar(&buildDir, "dir", "", "build from this local directory instead of a repository")
	_ = buildCmd.MarkFlagRequired("tag")
}

func runBuild(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (buildDir == "") {
		return fmt.Errorf("give either a repository url or --dir")
	}
	req := domain.BuildRequest{
		Ref:        buildRef,
		Image:      buildImage,
		Dockerfile: buildDockerfile,
	}

	ctx := cmd.Context()
	mgr, engine, err := newManagerWithEngine(ctx)
	if err != nil {
		return err
	}
	defer mgr.Close()
	b := builder.NewBuilderAdapter(engine, mgr.Session())

	var image string
	if buildDir != "" {
		image, err = b.BuildContext(ctx, buildDir, req)
	} else {
		req.RepoURL = args[0]
		image, err = b.BuildImage(ctx, req)
	}
	if err != nil {
		return err
	}
	if ok, err := printStructured(os.Stdout, map[string]string{"image": image}); ok {
		return err
	}
	fmt.Println(image)
	return nil
}
