package classify

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/yurifrl/finbr/pkg/models"
)

type Status string

const (
	StatusClassified Status = "classified"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Skip and failure reasons recorded on results.
const (
	ReasonAlreadyClassified = "already classified"
	ReasonNoMatch           = "no matching rule"
	ReasonAborted           = "aborted"
)

const (
	DefaultLargeBatchThreshold = 500
	DefaultProgressEvery       = 100
)

// Candidate is a stored transaction eligible for classification.
type Candidate struct {
	ID          string
	Transaction models.BankTransaction
}

// Writer persists a single classification.
type Writer interface {
	Classify(ctx context.Context, transactionID string, rule models.ClassificationRule) error
}

type Options struct {
	// DryRun computes matches without writing.
	DryRun bool
	// StopOnError aborts the batch at the first failed write.
	StopOnError         bool
	LargeBatchThreshold int
	ProgressEvery       int
}

type Result struct {
	TransactionID string         `json:"transaction_id"`
	Status        Status         `json:"status"`
	RuleID        string         `json:"rule_id,omitempty"`
	Target        *models.Target `json:"target,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

type Report struct {
	RunID   string   `json:"run_id"`
	DryRun  bool     `json:"dry_run"`
	Writes  int      `json:"writes"`
	Results []Result `json:"results"`
}

func (r *Report) count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

func (r *Report) Classified() int { return r.count(StatusClassified) }
func (r *Report) Skipped() int    { return r.count(StatusSkipped) }
func (r *Report) Failed() int     { return r.count(StatusFailed) }

// Job classifies candidates one at a time. A partially failed run leaves the
// successful writes in place; running it again only touches what is still
// unclassified.
type Job struct {
	logger  *log.Logger
	matcher *Matcher
	writer  Writer
	opts    Options
}

func NewJob(logger *log.Logger, matcher *Matcher, writer Writer, opts Options) *Job {
	if opts.LargeBatchThreshold <= 0 {
		opts.LargeBatchThreshold = DefaultLargeBatchThreshold
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	return &Job{
		logger:  logger,
		matcher: matcher,
		writer:  writer,
		opts:    opts,
	}
}

func (j *Job) Run(ctx context.Context, candidates []Candidate) *Report {
	report := &Report{
		RunID:   uuid.NewString(),
		DryRun:  j.opts.DryRun,
		Results: make([]Result, 0, len(candidates)),
	}
	logger := j.logger.With("run", report.RunID)

	if len(candidates) > j.opts.LargeBatchThreshold {
		logger.Warn("large classification batch", "candidates", len(candidates), "threshold", j.opts.LargeBatchThreshold)
	}
	logger.Info("starting classification", "candidates", len(candidates), "rules", j.matcher.Len(), "dry_run", j.opts.DryRun)

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			j.abort(report, candidates[i:], err)
			break
		}

		res := j.classify(ctx, c)
		report.Results = append(report.Results, res)
		if res.Status == StatusClassified && !j.opts.DryRun {
			report.Writes++
		}

		if res.Status == StatusFailed {
			logger.Warn("classification failed", "transaction", c.ID, "reason", res.Reason)
			if j.opts.StopOnError {
				j.abort(report, candidates[i+1:], fmt.Errorf("stopped after failure on %s", c.ID))
				break
			}
		}

		if (i+1)%j.opts.ProgressEvery == 0 {
			logger.Info("classification progress", "done", i+1, "total", len(candidates))
		}
	}

	logger.Info("classification finished",
		"classified", report.Classified(),
		"skipped", report.Skipped(),
		"failed", report.Failed(),
		"writes", report.Writes)
	return report
}

func (j *Job) classify(ctx context.Context, c Candidate) Result {
	res := Result{TransactionID: c.ID}

	if c.Transaction.Classified() {
		res.Status = StatusSkipped
		res.Reason = ReasonAlreadyClassified
		return res
	}

	rule, ok := j.matcher.Match(c.Transaction.Description())
	if !ok {
		res.Status = StatusSkipped
		res.Reason = ReasonNoMatch
		return res
	}

	target := rule.Target
	res.RuleID = rule.ID
	res.Target = &target

	if !j.opts.DryRun {
		if err := j.writer.Classify(ctx, c.ID, rule); err != nil {
			res.Status = StatusFailed
			res.Reason = err.Error()
			return res
		}
	}

	res.Status = StatusClassified
	return res
}

func (j *Job) abort(report *Report, rest []Candidate, cause error) {
	j.logger.Warn("classification aborted", "remaining", len(rest), "cause", cause)
	for _, c := range rest {
		report.Results = append(report.Results, Result{
			TransactionID: c.ID,
			Status:        StatusFailed,
			Reason:        ReasonAborted,
		})
	}
}
