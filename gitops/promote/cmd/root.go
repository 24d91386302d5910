package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/byte4ever/branch_promoter/gitops/config"
	"github.com/byte4ever/branch_promoter/gitops/git"
	"github.com/byte4ever/branch_promoter/gitops/logging"
	"github.com/byte4ever/branch_promoter/gitops/prtext"
)

// errPromotionFailed is returned once the failure has
// already been reported to the user.
var errPromotionFailed = errors.New("promotion failed")

// env is the process surface the commands read from.
type env struct {
	getenv func(string) string
	stdout io.Writer
	stderr io.Writer
}

type globalOptions struct {
	configPath string
	provider   string
	repository string
	token      string
	logLevel   string
	logFile    string
	logJSON    bool
	output     string
}

// app is what every subcommand needs once flags,
// config and secrets are resolved.
type app struct {
	cfg     config.Config
	remote  git.RemoteRepo
	text    *prtext.Renderer
	printer *printer
	closer  io.Closer
}

func newRootCmd(e env) *cobra.Command {
	var opts globalOptions

	root := &cobra.Command{
		Use:   "promote",
		Short: "Promote branches through pull requests on a hosted repository",
		Long: `Promote branches through pull requests on a hosted repository.

Pull requests are found or opened, merged once the remote reports them
mergeable, and production merges of a release are tagged.

Secrets are read from GITHUB_TOKEN, GITLAB_TOKEN or BITBUCKET_PASSWORD and
the repository from GITHUB_REPOSITORY when not given as flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetOut(e.stdout)
	root.SetErr(e.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&opts.provider, "provider", "", "Hosting platform: github, gitlab or bitbucket")
	pf.StringVar(&opts.repository, "repository", "", "Repository identifier (owner/repo)")
	pf.StringVar(&opts.token, "token", "", "Access token (defaults to the provider's environment variable)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.StringVar(&opts.logFile, "log-file", "", "Write logs to this rotating file")
	pf.BoolVar(&opts.logJSON, "log-json", false, "Force JSON log records")
	pf.StringVar(&opts.output, "output", outputText, "Result format: text or json")

	setup := func() (*app, error) {
		return newApp(e, opts)
	}

	root.AddCommand(
		newPromoteCmd(setup),
		newCutReleaseCmd(setup),
	)

	return root
}

func newApp(e env, opts globalOptions) (*app, error) {
	const errCtx = "setting up"

	pr, err := newPrinter(e.stdout, opts.output)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:  opts.logLevel,
		File:   opts.logFile,
		JSON:   opts.logJSON,
		Writer: e.stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.SetDefault(logger)

	a, err := resolveApp(e, opts)
	if err != nil {
		_ = closer.Close()

		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	a.printer = pr
	a.closer = closer

	return a, nil
}

func resolveApp(e env, opts globalOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.provider != "" {
		cfg.Provider = opts.provider
	}

	switch {
	case opts.repository != "":
		cfg.Repository = opts.repository
	case cfg.Repository == "":
		cfg.Repository = e.getenv("GITHUB_REPOSITORY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	token := opts.token
	if token == "" {
		token = e.getenv(tokenVariable(cfg.Provider))
	}

	if token == "" {
		return nil, fmt.Errorf(
			"no access token: set --token or %s",
			tokenVariable(cfg.Provider),
		)
	}

	remote, err := newRemote(cfg, token)
	if err != nil {
		return nil, err
	}

	text, err := prtext.New(cfg.TextTemplates())
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		remote: remote,
		text:   text,
	}, nil
}

func tokenVariable(provider string) string {
	switch provider {
	case config.ProviderGitLab:
		return "GITLAB_TOKEN"
	case config.ProviderBitbucket:
		return "BITBUCKET_PASSWORD"
	default:
		return "GITHUB_TOKEN"
	}
}
