package presenter

import (
	"fmt"
	"log/slog"

	"github.com/mikesmitty/gesture-predictor/pkg/inference"
)

// Confidence formats a probability as a percentage with three decimals.
func Confidence(p float64) string {
	return fmt.Sprintf("%.3f%%", p*100)
}

// Console logs each result as it arrives.
func Console(results <-chan inference.Result, onResult func(inference.Result)) func() error {
	return func() error {
		for r := range results {
			slog.Info("gesture", "label", r.Label, "confidence", Confidence(r.Probability), "window", r.Window)
			if onResult != nil {
				onResult(r)
			}
		}
		return nil
	}
}
