package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cireview.evalgo.org/common"
	"cireview.evalgo.org/review"
)

var (
	analyzeOutput string
	analyzeJSON   bool
)

// analyzeCmd reviews local artifact files without starting the server.
var analyzeCmd = &cobra.Command{
	Use:   "analyze <artifact>...",
	Short: "review local integration artifacts and print a report",
	Long: `Analyze reviews one or more local artifact files (designtime ZIP
archives or bare BPMN definition files) against the configured guidelines
policy and prints a markdown report.

The command exits with status 1 when any artifact fails the policy, which
makes it usable as a CI gate:

	cireview analyze build/artifacts/*.zip --output review.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "write the report to a file instead of stdout")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print results as JSON instead of markdown")
	RootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	log := common.NewLogger(common.LoggerConfig{
		Level:  common.LogLevelWarn,
		Format: cfg.Logging.Format,
	})

	policy, err := loadPolicy(cfg)
	if err != nil {
		return fmt.Errorf("failed to load guidelines: %w", err)
	}

	reviewer := review.NewReviewer(policy, cfg.Review.Workers, log)
	reviewer.SetStrictSecurity(cfg.Review.StrictSecurity)

	opLog := common.NewContextLogger(log, map[string]interface{}{"artifacts": len(args)})
	var results []*review.Result
	err = common.LogOperation(opLog, "analyze", func() error {
		var rerr error
		results, rerr = reviewer.ReviewAll(context.Background(), args)
		return rerr
	})
	if err != nil {
		return err
	}

	var report string
	if analyzeJSON {
		report, err = review.RenderJSON(results)
		if err != nil {
			return err
		}
	} else {
		report = review.RenderMarkdown(policy.Name, results, time.Now())
	}

	if analyzeOutput != "" {
		if err := os.WriteFile(analyzeOutput, []byte(report), 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	} else {
		fmt.Print(report)
	}

	failed := 0
	for _, res := range results {
		if res.Verdict == review.VerdictFail {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d artifacts failed the review policy", failed, len(results))
	}
	return nil
}
