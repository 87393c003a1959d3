package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/fieldflow/fieldflow/pkg/cmd"
	"github.com/fieldflow/fieldflow/pkg/log"
	"github.com/fieldflow/fieldflow/pkg/schedule"
)

var errInvalidWorkflows = errors.New("invalid workflows found")

// NewValidateCommand checks every stored workflow: model invariants, step
// action configurations, and cron expressions for scheduled workflows.
func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate stored workflow configurations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("fieldflow-worker").With("action", "validate")

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				_ = store.Close(ctx)
			}()

			reg := cmd.NewRegistry(logger)
			evaluator := schedule.NewEvaluator()

			workflows, err := store.Workflows(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch workflows: %w", err)
			}

			logger.InfoContext(ctx, "Validating workflows", "count", len(workflows))

			invalid := 0

			for _, workflow := range workflows {
				_, _ = fmt.Fprintf(os.Stdout, "\nWorkflow: %s (%s)\n", workflow.Name, workflow.ID)

				problems := make([]string, 0)

				if err := workflow.Validate(); err != nil {
					problems = append(problems, err.Error())
				}

				for _, step := range workflow.Steps {
					if err := reg.ValidateStep(step); err != nil {
						problems = append(problems, fmt.Sprintf("step %s: %v", step.ID, err))
					}
				}

				if workflow.IsScheduled() {
					if err := evaluator.Validate(workflow.ScheduleCron); err != nil {
						problems = append(problems, fmt.Sprintf("schedule: %v", err))
					}
				}

				if len(problems) == 0 {
					_, _ = fmt.Fprintln(os.Stdout, "  VALID")

					continue
				}

				invalid++

				for _, problem := range problems {
					_, _ = fmt.Fprintf(os.Stdout, "  INVALID: %s\n", problem)
				}
			}

			_, _ = fmt.Fprintf(os.Stdout, "\nValidated %d workflows, %d invalid\n", len(workflows), invalid)

			if invalid > 0 {
				return fmt.Errorf("%w: %d", errInvalidWorkflows, invalid)
			}

			return nil
		},
	}
}
