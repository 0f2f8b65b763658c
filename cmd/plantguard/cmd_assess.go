package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"plantguard/internal/articulation"
	"plantguard/internal/classifier"
	"plantguard/internal/pipeline"
)

var (
	assessSpecies    string
	assessConfidence float64
	assessImage      string
	plainOutput      bool
)

// assessCmd runs the pipeline once
var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Assess one classification or image",
	Long: `Runs the pipeline once and prints the risk report.

Either pass a classification directly:
  plantguard assess --species lantana --confidence 0.9

or classify an image with the configured backend:
  plantguard assess --image leaf.jpg

HIGH-risk results are tagged with a fresh location before the command exits.`,
	RunE: runAssess,
}

func init() {
	assessCmd.Flags().StringVar(&assessSpecies, "species", "", "Species label from an external classifier")
	assessCmd.Flags().Float64Var(&assessConfidence, "confidence", 0, "Classifier confidence in [0,1]")
	assessCmd.Flags().StringVar(&assessImage, "image", "", "Image to classify with the configured backend")
	assessCmd.MarkFlagsMutuallyExclusive("species", "image")
	assessCmd.MarkFlagsRequiredTogether("species", "confidence")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Disable terminal styling")
}

func renderer() *articulation.Renderer {
	if plainOutput {
		return articulation.Plain()
	}
	return articulation.Styled()
}

func runAssess(cmd *cobra.Command, args []string) error {
	if assessSpecies == "" && assessImage == "" {
		return fmt.Errorf("either --species/--confidence or --image is required")
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ws)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, ws, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var out pipeline.Outcome
	if assessImage != "" {
		img, err := classifier.LoadImage(assessImage)
		if err != nil {
			return err
		}
		if out, err = a.orch.Run(ctx, img); err != nil {
			return err
		}
	} else {
		manual := classifier.NewStatic(assessSpecies, assessConfidence)
		if out, err = a.orch.RunWith(ctx, manual, classifier.Image{}); err != nil {
			return err
		}
	}

	logger.Info("assessment complete",
		zap.String("run", out.RunID),
		zap.String("species", out.Result.Label),
		zap.Stringer("risk", out.Risk))

	r := renderer()
	w := cmd.OutOrStdout()
	fmt.Fprint(w, r.Outcome(out))
	writeTagging(ctx, w, r, out.Tagging, cfg.GetLocationTimeout()+time.Second)
	fmt.Fprintln(w)
	return nil
}

// writeTagging waits up to limit for a HIGH-risk tag and prints the addendum.
func writeTagging(ctx context.Context, w io.Writer, r *articulation.Renderer, t *pipeline.Tagging, limit time.Duration) {
	if t == nil {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	s, err := t.Wait(waitCtx)
	if err != nil {
		t.Cancel()
		logger.Warn("location tagging failed", zap.String("run", t.RunID), zap.Error(err))
		fmt.Fprint(w, r.TaggingFailed(err))
		return
	}
	fmt.Fprint(w, r.Location(s))
}
