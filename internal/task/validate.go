package task

import (
	"encoding/json"
	"math"

	"neuroswarm/internal/errs"
)

// neuralResultLen is the fixed length of a neural-network probability
// vector, matching the 10-way softmax output layer.
const neuralResultLen = 10

// ValidateResult checks a submitted result against the type-specific schema.
// Unknown types are rejected at ingestion.
func ValidateResult(taskType Type, result json.RawMessage) error {
	if len(result) == 0 {
		return errs.Validation("result is required")
	}

	switch taskType {
	case TypeMatrixMultiplication:
		var matrix [][]float64
		if err := json.Unmarshal(result, &matrix); err != nil {
			return errs.Validation("matrix result must be a two-dimensional numeric array")
		}
		if len(matrix) == 0 || len(matrix[0]) == 0 {
			return errs.Validation("matrix result must be non-empty")
		}
		return nil

	case TypeNeuralNetwork:
		var probs []float64
		if err := json.Unmarshal(result, &probs); err != nil {
			return errs.Validation("neural-network result must be a numeric vector")
		}
		if len(probs) != neuralResultLen {
			return errs.Validation("neural-network result must have %d probabilities, got %d", neuralResultLen, len(probs))
		}
		return nil

	case TypeImageProcessing:
		var pixels []float64
		if err := json.Unmarshal(result, &pixels); err != nil {
			return errs.Validation("image result must be an integer pixel array")
		}
		if len(pixels) == 0 {
			return errs.Validation("image result must be non-empty")
		}
		for _, p := range pixels {
			if p != math.Trunc(p) {
				return errs.Validation("image result must contain only integers")
			}
		}
		return nil

	default:
		return errs.Validation("unknown task type %q", taskType)
	}
}
