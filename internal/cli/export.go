package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"proficiency-exam-service/internal/app"
	"proficiency-exam-service/internal/config"
	"proficiency-exam-service/internal/domain"
	"proficiency-exam-service/internal/logging"
)

// NewExportResultsCmd writes stored results as CSV.
func NewExportResultsCmd(configPath *string) *cobra.Command {
	var (
		out        string
		templateID string
		studentID  string
	)
	cmd := &cobra.Command{
		Use:   "export-results",
		Short: "Export exam results as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), *configPath, func(ctx context.Context, svc *services, log *zap.Logger) error {
				results, err := svc.submissions.List(ctx, domain.ResultFilter{TemplateID: templateID, StudentID: studentID})
				if err != nil {
					return err
				}
				var w io.Writer = cmd.OutOrStdout()
				if out != "" && out != "-" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				if err := app.WriteResultsCSV(w, results); err != nil {
					return fmt.Errorf("write csv: %w", err)
				}
				log.Info("results exported", zap.Int("rows", len(results)), zap.String("output", out))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&templateID, "template", "", "only results for this template")
	cmd.Flags().StringVar(&studentID, "student", "", "only results for this student")
	return cmd
}

// NewIssueCertificatesCmd issues certificates for every eligible result.
func NewIssueCertificatesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-certificates",
		Short: "Issue certificates for all passing results that lack one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), *configPath, func(ctx context.Context, svc *services, log *zap.Logger) error {
				certs, created, err := svc.certificates.IssueEligible(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d certificates, %d newly issued\n", len(certs), created)
				return nil
			})
		},
	}
}

func withServices(ctx context.Context, configPath string, fn func(context.Context, *services, *zap.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	svc, cleanup, err := buildServices(ctx, cfg, log)
	defer cleanup()
	if err != nil {
		return err
	}
	return fn(ctx, svc, log)
}
