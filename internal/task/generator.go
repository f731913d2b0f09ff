package task

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	mrand "math/rand"
	"time"
)

// Reward bounds per task, drawn uniformly and rounded to 4 decimals.
const (
	minReward = 0.1
	maxReward = 0.6
)

// Per-type minimum requirements. Neural-network work needs more compute;
// image work needs more memory.
const (
	baseMinCompute   = 2.0
	neuralMinCompute = 5.0
	baseMinMemory    = 2.0
	imageMinMemory   = 4.0
)

// MatrixPayload describes a square matrix multiplication. Inputs are derived
// from the seed on the worker so the payload stays small on the wire.
type MatrixPayload struct {
	Size int   `json:"size"`
	Seed int64 `json:"seed"`
}

// LayerSpec is one layer of a neural-network inference task.
type LayerSpec struct {
	Size       int    `json:"size"`
	Activation string `json:"activation"`
}

// NeuralPayload describes a forward pass through a fixed topology ending in
// a 10-way softmax.
type NeuralPayload struct {
	InputSize int         `json:"input_size"`
	Layers    []LayerSpec `json:"layers"`
	Seed      int64       `json:"seed"`
}

// ImagePayload describes a filter pass over a seeded frame.
type ImagePayload struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Filter string `json:"filter"`
	Seed   int64  `json:"seed"`
}

func generateTaskID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Generate produces a fresh AVAILABLE task of a random type.
func Generate(now time.Time) (*Task, error) {
	return GenerateOfType(Types[mrand.Intn(len(Types))], now)
}

// GenerateOfType produces a fresh AVAILABLE task of the given type.
func GenerateOfType(taskType Type, now time.Time) (*Task, error) {
	reward := math.Round((minReward+mrand.Float64()*(maxReward-minReward))*1e4) / 1e4

	var payload any
	switch taskType {
	case TypeMatrixMultiplication:
		payload = MatrixPayload{
			Size: 500 + mrand.Intn(501), // 500..1000
			Seed: mrand.Int63(),
		}
	case TypeNeuralNetwork:
		payload = NeuralPayload{
			InputSize: 1000,
			Layers: []LayerSpec{
				{Size: 1000, Activation: "relu"},
				{Size: 500, Activation: "relu"},
				{Size: 100, Activation: "relu"},
				{Size: 10, Activation: "softmax"},
			},
			Seed: mrand.Int63(),
		}
	case TypeImageProcessing:
		payload = ImagePayload{
			Width:  1920,
			Height: 1080,
			Filter: "gaussian_blur",
			Seed:   mrand.Int63(),
		}
	default:
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	return &Task{
		ID:           generateTaskID(),
		Type:         taskType,
		State:        StateAvailable,
		Reward:       reward,
		Payload:      data,
		Requirements: RequirementsFor(taskType),
		CreatedAt:    now,
	}, nil
}

// RequirementsFor returns the fixed minimum requirements for a task type.
func RequirementsFor(taskType Type) Requirements {
	req := Requirements{MinCompute: baseMinCompute, MinMemory: baseMinMemory}
	if taskType == TypeNeuralNetwork {
		req.MinCompute = neuralMinCompute
	}
	if taskType == TypeImageProcessing {
		req.MinMemory = imageMinMemory
	}
	return req
}
