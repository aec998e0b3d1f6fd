package review

import (
	"context"
	"math"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"cireview.evalgo.org/common"
	"cireview.evalgo.org/iflow"
)

// Verdict values for a reviewed artifact.
const (
	VerdictPass = "pass"
	VerdictWarn = "warn"
	VerdictFail = "fail"
)

// Result is the complete review outcome for one artifact.
type Result struct {
	Path         string                  `json:"path"`
	ArtifactID   string                  `json:"artifact_id,omitempty"`
	ArtifactName string                  `json:"artifact_name"`
	SizeBytes    int64                   `json:"size_bytes"`
	Extraction   *iflow.ExtractionResult `json:"extraction"`
	Findings     []Finding               `json:"findings"`
	Score        float64                 `json:"score"`
	Verdict      string                  `json:"verdict"`
}

// Reviewer runs the analyze-then-evaluate pipeline over artifacts. Workers
// bounds how many artifacts are analyzed concurrently in ReviewAll.
type Reviewer struct {
	Workers int

	guidelines Guidelines
	analyzer   *iflow.Analyzer
	log        *logrus.Logger
}

// DefaultWorkers is the concurrency used when none is configured.
const DefaultWorkers = 4

// NewReviewer returns a reviewer applying the given policy.
func NewReviewer(guidelines Guidelines, workers int, log *logrus.Logger) *Reviewer {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = common.Logger
	}
	return &Reviewer{
		Workers:    workers,
		guidelines: guidelines,
		analyzer:   iflow.NewAnalyzer(log),
		log:        log,
	}
}

// SetStrictSecurity toggles the strict missing-authentication policy on the
// underlying analyzer.
func (r *Reviewer) SetStrictSecurity(strict bool) {
	r.analyzer.SetStrictSecurity(strict)
}

// ReviewArtifact analyzes and evaluates a single artifact file.
func (r *Reviewer) ReviewArtifact(path string) *Result {
	return r.ReviewArtifactWithIdentity(path, "", "")
}

// ReviewArtifactWithIdentity is ReviewArtifact for callers that already know
// the designtime identity of the file.
func (r *Reviewer) ReviewArtifactWithIdentity(path, artifactID, artifactName string) *Result {
	extraction := r.analyzer.AnalyzeArtifact(path, artifactID, artifactName)
	findings := Evaluate(r.guidelines, extraction)

	result := &Result{
		Path:         path,
		ArtifactID:   extraction.ArtifactID,
		ArtifactName: extraction.ArtifactName,
		Extraction:   extraction,
		Findings:     findings,
	}
	if info, err := os.Stat(path); err == nil {
		result.SizeBytes = info.Size()
	}
	result.Score, result.Verdict = scoreFindings(findings)

	r.log.WithFields(logrus.Fields{
		"artifact": result.ArtifactName,
		"score":    result.Score,
		"verdict":  result.Verdict,
	}).Info("artifact reviewed")
	return result
}

// ReviewAll reviews artifacts concurrently, preserving input order in the
// result slice. A single artifact failing analysis does not abort the batch;
// only context cancellation does.
func (r *Reviewer) ReviewAll(ctx context.Context, paths []string) ([]*Result, error) {
	return r.ReviewAllWithProgress(ctx, paths, nil)
}

// ReviewAllWithProgress is ReviewAll with a progress callback invoked after
// each artifact finishes. The callback may run from multiple goroutines.
func (r *Reviewer) ReviewAllWithProgress(ctx context.Context, paths []string, progress func(completed, total int)) ([]*Result, error) {
	results := make([]*Result, len(paths))
	var completed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Workers)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = r.ReviewArtifact(path)
			if progress != nil {
				progress(int(completed.Add(1)), len(paths))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// scoreFindings computes the percentage of passed rules and the verdict.
// Any failed critical rule fails the artifact; failed warnings degrade it to
// warn; info-level failures alone still pass.
func scoreFindings(findings []Finding) (float64, string) {
	if len(findings) == 0 {
		return 100, VerdictPass
	}

	passed := 0
	verdict := VerdictPass
	for _, f := range findings {
		if f.Passed {
			passed++
			continue
		}
		switch f.Severity {
		case SeverityCritical:
			verdict = VerdictFail
		case SeverityWarning:
			if verdict != VerdictFail {
				verdict = VerdictWarn
			}
		}
	}

	score := math.Round(float64(passed)/float64(len(findings))*1000) / 10
	return score, verdict
}
