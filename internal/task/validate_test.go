package task

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"neuroswarm/internal/errs"
)

func TestValidateMatrixResult(t *testing.T) {
	assert.NoError(t, ValidateResult(TypeMatrixMultiplication, json.RawMessage(`[[1,2],[3,4]]`)))
	assert.NoError(t, ValidateResult(TypeMatrixMultiplication, json.RawMessage(`[[1.5]]`)))

	assert.Error(t, ValidateResult(TypeMatrixMultiplication, json.RawMessage(`[]`)))
	assert.Error(t, ValidateResult(TypeMatrixMultiplication, json.RawMessage(`[[]]`)))
	assert.Error(t, ValidateResult(TypeMatrixMultiplication, json.RawMessage(`[1,2,3]`)))
	assert.Error(t, ValidateResult(TypeMatrixMultiplication, json.RawMessage(`"not an array"`)))
}

func TestValidateNeuralResult(t *testing.T) {
	assert.NoError(t, ValidateResult(TypeNeuralNetwork, json.RawMessage(`[0.1,0.1,0.1,0.1,0.1,0.1,0.1,0.1,0.1,0.1]`)))

	assert.Error(t, ValidateResult(TypeNeuralNetwork, json.RawMessage(`[0.5,0.5]`)), "wrong length")
	assert.Error(t, ValidateResult(TypeNeuralNetwork, json.RawMessage(`{"probs":[]}`)))
}

func TestValidateImageResult(t *testing.T) {
	assert.NoError(t, ValidateResult(TypeImageProcessing, json.RawMessage(`[0,128,255,17]`)))

	assert.Error(t, ValidateResult(TypeImageProcessing, json.RawMessage(`[0.5,1]`)), "fractional pixels")
	assert.Error(t, ValidateResult(TypeImageProcessing, json.RawMessage(`[]`)))
}

func TestValidateRejectsEmptyAndUnknown(t *testing.T) {
	err := ValidateResult(TypeMatrixMultiplication, nil)
	assert.True(t, errs.Is(err, errs.KindValidation))

	err = ValidateResult(Type("quantum"), json.RawMessage(`[1]`))
	assert.True(t, errs.Is(err, errs.KindValidation))
}
