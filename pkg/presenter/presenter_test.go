package presenter

import (
	"testing"

	"github.com/mikesmitty/gesture-predictor/pkg/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidence(t *testing.T) {
	assert.Equal(t, "87.654%", Confidence(0.87654))
	assert.Equal(t, "100.000%", Confidence(1))
	assert.Equal(t, "0.000%", Confidence(0))
}

func TestConsole(t *testing.T) {
	results := make(chan inference.Result, 2)
	results <- inference.Result{Label: "shake", Probability: 0.5, Window: 1}
	results <- inference.Result{Label: "idle", Probability: 0.9, Window: 2}
	close(results)

	var seen []string
	require.NoError(t, Console(results, func(r inference.Result) { seen = append(seen, r.Label) })())
	assert.Equal(t, []string{"shake", "idle"}, seen)
}
