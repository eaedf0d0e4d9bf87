package main

import (
	"fmt"
	"os"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dependency-impact-checker/pkg/config"
	"github.com/dependency-impact-checker/pkg/pipeline"
	"github.com/dependency-impact-checker/pkg/registry"
	"github.com/dependency-impact-checker/pkg/semgrep"
	"github.com/dependency-impact-checker/pkg/vcs"
)

var (
	version = "dev"
	commit  = "none"

	// deploymentID can be baked in at build time to pin the deployment
	// scope ahead of the env var and the API lookup.
	deploymentID = ""
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "depimpact",
		Short:   "Flag which dependencies in a CSV are used in your Semgrep deployment",
		Long:    `Reads a CSV of (dependency, version) pairs, asks the Semgrep API which of them appear in repositories of your deployment, and writes the same CSV back with an added Impact column (Yes/No).`,
		Version: fmt.Sprintf("%s (%s)", version, commit),
		RunE:    run,
	}

	defaultDeployment := deploymentID
	if defaultDeployment == "" {
		defaultDeployment = os.Getenv("SEMGREP_DEPLOYMENT_ID")
	}

	rootCmd.Flags().String("input", "", "Path to the input CSV (columns: dependency|name, optional version)")
	rootCmd.Flags().String("output", "", "Path to the output CSV")
	rootCmd.Flags().String("token", os.Getenv("SEMGREP_API_TOKEN"), "Semgrep API token (Web API scope)")
	rootCmd.Flags().String("deployment", defaultDeployment, "Deployment ID or slug (resolved via the API if omitted)")
	rootCmd.Flags().String("config", ".depimpact.yml", "Path to config file")
	rootCmd.Flags().Int("page-size", 0, "Page size for repository search requests")
	rootCmd.Flags().Int("max-retries", 0, "Attempts per search request before degrading to No")
	rootCmd.Flags().Bool("details", false, "Add Source Repo and Latest Release columns for impacted dependencies")
	rootCmd.Flags().String("github-token", os.Getenv("GITHUB_TOKEN"), "GitHub token for --details release lookups")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("could not load config file: %v (using defaults)", err)
		}
		cfg = config.Default()
	}
	cfg = config.MergeFlags(cfg, cmd.Flags())

	if err := cfg.Validate(); err != nil {
		return err
	}

	client := semgrep.NewClient(cfg.BaseURL, cfg.Token, semgrep.Options{
		PageSize:      cfg.PageSize,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff(),
		ListTimeout:   cfg.ListTimeout(),
		SearchTimeout: cfg.SearchTimeout(),
	})

	scope := cfg.DeploymentID
	if scope == "" {
		scope, err = client.ResolveDeploymentID()
		if err != nil {
			return fmt.Errorf("resolve deployment: %w", err)
		}
	}
	logger.Infof("using deployment %s", scope)

	p := &pipeline.Pipeline{
		Input:        cfg.Input,
		Output:       cfg.Output,
		DeploymentID: scope,
		Checker:      client,
	}
	if cfg.Details {
		p.Enricher = &pipeline.DetailsEnricher{
			Registry: registry.NewClient(""),
			Releases: vcs.NewGitHubClient(cfg.GitHubToken),
		}
	}

	if err := p.Run(); err != nil {
		return err
	}

	fmt.Printf("done. wrote: %s\n", cfg.Output)
	return nil
}
