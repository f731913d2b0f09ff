// Package task owns the work catalog: task records, type-specific payload
// generation, and result validation.
package task

import (
	"encoding/json"
	"time"
)

// State is a task's position in its lifecycle. COMPLETED is terminal.
type State string

const (
	StateAvailable State = "AVAILABLE"
	StateAssigned  State = "ASSIGNED"
	StateCompleted State = "COMPLETED"
)

// Type enumerates the work categories.
type Type string

const (
	TypeMatrixMultiplication Type = "matrix_multiplication"
	TypeNeuralNetwork        Type = "neural_network"
	TypeImageProcessing      Type = "image_processing"
)

// Types lists every known task type in generation order.
var Types = []Type{TypeMatrixMultiplication, TypeNeuralNetwork, TypeImageProcessing}

// Requirements declares the minimum node capability for a task.
type Requirements struct {
	MinCompute float64 `json:"min_compute"`
	MinMemory  float64 `json:"min_memory"`
}

// Task is a unit of distributable work. Reward is fixed at creation and
// never changes.
type Task struct {
	ID           string          `json:"id"`
	Type         Type            `json:"type"`
	State        State           `json:"state"`
	Reward       float64         `json:"reward"`
	Payload      json.RawMessage `json:"payload"`
	Requirements Requirements    `json:"requirements"`

	CreatedAt   time.Time       `json:"created_at"`
	AssignedTo  string          `json:"assigned_to,omitempty"`
	AssignedAt  time.Time       `json:"assigned_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`

	// Failures counts rejected result submissions since the last
	// assignment. Past the retry budget the task is requeued.
	Failures int `json:"failures,omitempty"`
}
