package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	app "github.com/okian/learnpath/internal/app"
	"github.com/okian/learnpath/internal/domain/model"
)

// pathOutput is one line of predict output.
type pathOutput struct {
	LearningPath model.LearningPath `json:"learning_path"`
}

func newPredictCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "predict",
		Short: "Predict learning paths for fused feature vectors read from stdin",
		Long: `Reads a JSON fused feature vector ([e1,...,score]), a single-row batch
([[...]]) or a batch ([[...],[...]]) from stdin and writes one
{"learning_path": [...]} line per vector to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return model.WrapKind("predict.read", model.ErrMalformedInput, err)
			}
			batch, err := parseVectors(raw)
			if err != nil {
				return err
			}

			svc := c.service(app.WithQuestionBankPath(""))
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			paths, err := svc.PredictBatch(ctx, batch)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, p := range paths {
				if err := enc.Encode(pathOutput{LearningPath: p}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// parseVectors accepts a single vector or a batch of vectors. Lengths are
// left to the model, which reports shape mismatches itself.
func parseVectors(raw []byte) ([]model.FusedVector, error) {
	const op = "predict.parse"

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, model.Errorf(op, model.ErrMalformedInput, "empty input")
	}

	var single []float64
	if err := json.Unmarshal(raw, &single); err == nil {
		if len(single) == 0 {
			return nil, model.Errorf(op, model.ErrMalformedInput, "empty vector")
		}
		return []model.FusedVector{single}, nil
	}

	var rows [][]float64
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, model.WrapKind(op, model.ErrMalformedInput,
			fmt.Errorf("want a JSON array of numbers or an array of such arrays: %w", err))
	}
	if len(rows) == 0 {
		return nil, model.Errorf(op, model.ErrMalformedInput, "empty batch")
	}
	batch := make([]model.FusedVector, len(rows))
	for i, r := range rows {
		batch[i] = r
	}
	return batch, nil
}
