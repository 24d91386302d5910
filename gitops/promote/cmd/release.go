package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/byte4ever/branch_promoter/gitops/promote"
)

func newCutReleaseCmd(setup func() (*app, error)) *cobra.Command {
	var (
		source  string
		version string
	)

	cmd := &cobra.Command{
		Use:   "cut-release",
		Short: "Create a release branch and its pull request to production",
		Long: `Create a release branch and its pull request to production.

The branch is named after the current UTC time (release/YYYY.MM.DD.HHMMSS by
default). When --version is given it is recorded in the pull request and
promote_release tags production with it once the release is merged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}

			defer a.closer.Close() //nolint:errcheck

			res, err := promote.CutRelease(
				cmd.Context(),
				a.remote,
				a.text,
				promote.ReleaseRequest{
					Source:  source,
					Target:  a.cfg.ProductionBranch,
					Version: version,
					Now:     time.Now(),
				},
			)
			if perr := a.printer.release(res, version, err); perr != nil {
				return fmt.Errorf("printing result: %w", perr)
			}

			if err != nil {
				return errPromotionFailed
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "develop", "Branch the release starts from")
	cmd.Flags().StringVar(&version, "version", "", "Tag version applied when the release is promoted")

	return cmd
}
