// gatectl is the operator's CLI: it validates pipeline declarations and
// runs them locally in scratch directories, without a server or an agent.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gatehouse-ci/gatehouse/pipeline"
	"github.com/gatehouse-ci/gatehouse/runner"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	// The CLI keeps the runner's logging out of the way unless asked.
	lvl, err := logrus.ParseLevel(os.Getenv("GATEHOUSE_LOG_LEVEL"))
	if err != nil {
		lvl = logrus.WarnLevel
	}

	logrus.SetLevel(lvl)
}

func main() {
	root := &cobra.Command{
		Use:   "gatectl",
		Short: "Validate and run gatehouse pipelines",
	}

	root.AddCommand(validateCmd())
	root.AddCommand(runCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <declaration.yaml>",
		Short: "Check that a pipeline declaration parses and is complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.Load(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%v: ok (%v jobs)\n", args[0], len(p.Jobs))
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var remote, branch, revision string

	cmd := &cobra.Command{
		Use:   "run <declaration.yaml>",
		Short: "Run a pipeline locally in scratch directories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.Load(args[0])
			if err != nil {
				return err
			}

			src := runner.Source{
				Remote:   remote,
				Branch:   branch,
				Revision: revision,
			}

			res := runner.New(&runner.ExecProvider{}, nil).
				Run(context.Background(), p, src)

			for _, job := range res.Jobs {
				fmt.Printf("%v: %v\n", job.Job, job.State)
				for _, step := range job.Steps {
					switch {
					case step.Skipped:
						fmt.Printf("  %v: skipped\n", step.Name)
					case step.Err != nil:
						fmt.Printf("  %v: %v\n", step.Name, step.Err)
					default:
						fmt.Printf("  %v: ok\n", step.Name)
					}
				}
			}

			if !res.Success() {
				return fmt.Errorf("run failed")
			}

			fmt.Println("all jobs succeeded")
			return nil
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "", "git remote to check out into each scratch environment")
	cmd.Flags().StringVar(&branch, "branch", "", "branch to clone")
	cmd.Flags().StringVar(&revision, "revision", "", "revision to check out")

	return cmd
}
