package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/learnpath/internal/adapters/capture"
	"github.com/okian/learnpath/internal/adapters/repository"
	"github.com/okian/learnpath/internal/domain/model"
	"github.com/okian/learnpath/pkg/logger"
)

// captureOutput is the JSON document written by the capture command.
type captureOutput struct {
	RunID        string                `json:"run_id"`
	Snapshots    int                   `json:"snapshots"`
	StopReason   string                `json:"stop_reason"`
	Features     model.FusedVector     `json:"features"`
	LearningPath model.LearningPath    `json:"learning_path"`
	Questions    []repository.Question `json:"questions,omitempty"`
}

func newCaptureCmd(c *cli) *cobra.Command {
	var (
		frames        string
		score         float64
		classifierURL string
		count         int
		interval      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run the full pipeline over a directory of captured frames",
		Long: `Classifies every image in --frames through the configured expression
classifier, averages the target label probabilities, fuses them with
--score and prints the inferred learning path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()

			if classifierURL != "" {
				c.cfg.ClassifierURL = classifierURL
			}
			if c.cfg.ClassifierURL == "" {
				return model.Errorf("capture", model.ErrClassification, "no classifier_url configured")
			}
			if flags.Changed("count") {
				c.cfg.SnapshotCount = count
			}
			if flags.Changed("interval") {
				c.cfg.SnapshotInterval = interval
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}

			src, err := capture.NewDirSource(frames)
			if err != nil {
				return err
			}

			svc := c.service()
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			res, err := svc.Capture(ctx, src, score)
			if err != nil {
				return err
			}

			out := captureOutput{
				RunID:        res.RunID,
				Snapshots:    res.Snapshots,
				StopReason:   res.StopReason,
				Features:     res.Fused,
				LearningPath: res.LearningPath,
			}
			if c.cfg.QuestionBankPath != "" {
				sel, err := svc.QuestionsForPath(ctx, res.LearningPath)
				if err != nil {
					return err
				}
				out.Questions = sel.Questions
				if len(sel.Missing) > 0 {
					c.log.Warn(ctx, "no questions for some difficulties", logger.Ints("missing", sel.Missing))
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&frames, "frames", "", "directory of captured frame images")
	flags.Float64Var(&score, "score", 0, "performance score fused with the expression signal")
	flags.StringVar(&classifierURL, "classifier-url", "", "expression classifier endpoint (overrides classifier_url)")
	flags.IntVar(&count, "count", 0, "snapshots to collect (overrides snapshot_count)")
	flags.DurationVar(&interval, "interval", 0, "pause between snapshots (overrides snapshot_interval)")
	_ = cmd.MarkFlagRequired("frames")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}
