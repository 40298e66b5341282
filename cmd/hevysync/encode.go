package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/claude/hevysync/internal/fit"
	"github.com/claude/hevysync/internal/models"
	"github.com/claude/hevysync/internal/upload"
)

func newEncodeCmd(a *app) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "encode <workout.json>...",
		Short: "Encode Hevy workout JSON into FIT files",
		Long: `Encode workouts saved from the Hevy API without contacting either service.
Each file may hold a single workout or a whole /v1/workouts page.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("creating output dir: %w", err)
			}
			enc := fit.NewEncoder()
			var failed int
			for _, path := range args {
				workouts, err := readWorkouts(path)
				if err != nil {
					return err
				}
				for _, w := range workouts {
					out, err := encodeWorkout(enc, w, outputDir)
					if err != nil {
						a.log.Warn("skipping workout", "file", path, "id", w.ID, "title", w.Title, "error", err)
						failed++
						continue
					}
					fmt.Fprintln(cmd.OutOrStdout(), out)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d workout(s) could not be encoded", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "directory for the FIT files")
	return cmd
}

// readWorkouts accepts either a HevyWorkout or a HevyWorkoutsPage.
func readWorkouts(path string) ([]models.HevyWorkout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var probe struct {
		Workouts json.RawMessage `json:"workouts"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if probe.Workouts != nil {
		var page models.HevyWorkoutsPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return page.Workouts, nil
	}
	var w models.HevyWorkout
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return []models.HevyWorkout{w}, nil
}

func encodeWorkout(enc *fit.Encoder, w models.HevyWorkout, dir string) (string, error) {
	s, err := w.Session()
	if err != nil {
		return "", err
	}
	data, err := enc.Encode(s)
	if err != nil {
		return "", err
	}
	out := filepath.Join(dir, upload.ArtifactName(s))
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", out, err)
	}
	return out, nil
}
