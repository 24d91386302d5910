package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/byte4ever/branch_promoter/gitops/merge"
	"github.com/byte4ever/branch_promoter/gitops/promote"
)

func newPromoteCmd(setup func() (*app, error)) *cobra.Command {
	var (
		action     string
		branch     string
		holdHours  float64
		tagVersion string
	)

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Merge a branch along its promotion path",
		Long: `Merge a branch along its promotion path.

  feature_to_develop      branch -> develop
  hotfix_to_main_and_dev  branch -> main, then branch -> develop
  promote_release         optional hold, branch -> main (tagged), then branch -> develop

A stage only runs when the previous one merged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := promote.ParseKind(action)
			if err != nil {
				return err
			}

			hold, err := promote.HoldFromHours(holdHours)
			if err != nil {
				return err
			}

			a, err := setup()
			if err != nil {
				return err
			}

			defer a.closer.Close() //nolint:errcheck

			co, err := merge.New(merge.Config{
				Remote:           a.remote,
				Policy:           a.cfg.Policy(),
				ProductionBranch: a.cfg.ProductionBranch,
				Text:             a.text,
			})
			if err != nil {
				return err
			}

			wf, err := promote.NewWorkflow(promote.WorkflowConfig{
				Promoter:         co,
				DevelopBranch:    a.cfg.DevelopBranch,
				ProductionBranch: a.cfg.ProductionBranch,
			})
			if err != nil {
				return err
			}

			res := wf.Run(cmd.Context(), promote.Request{
				Kind:       kind,
				Source:     branch,
				Hold:       hold,
				TagVersion: tagVersion,
			})

			if err := a.printer.result(res); err != nil {
				return fmt.Errorf("printing result: %w", err)
			}

			if !res.Succeeded {
				return errPromotionFailed
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "Promotion kind: feature_to_develop, hotfix_to_main_and_dev or promote_release")
	cmd.Flags().StringVar(&branch, "branch", "", "Source branch")
	cmd.Flags().Float64Var(&holdHours, "hold-hours", 0, "Hours to wait before a release promotion")
	cmd.Flags().StringVar(&tagVersion, "tag-version", "", "Tag created on the production branch after a release merge")

	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("branch")

	return cmd
}
