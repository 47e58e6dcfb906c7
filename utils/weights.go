package utils

import (
	"encoding/json"
	"fmt"
	"os"

	"manifold_lib/nn"
	"manifold_lib/tensor"
)

// SnapshotVersion is written into every snapshot.
const SnapshotVersion = "1.0"

// WeightData represents serializable data of one parameter tensor
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Snapshot is the resumable state of a run, stored after every epoch.
type Snapshot struct {
	Version string `json:"version"`
	RunID   string `json:"run_id"`
	// Epoch counts completed epochs.
	Epoch  int           `json:"epoch"`
	LR     float64       `json:"lr"`
	Params []*WeightData `json:"params"`

	// Early stopping state; BestParams is empty when disabled.
	BestError  float64       `json:"best_error"`
	BestEpoch  int           `json:"best_epoch"`
	BestParams []*WeightData `json:"best_params,omitempty"`
}

// SaveSnapshot saves a snapshot to a JSON file
func SaveSnapshot(filepath string, s *Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadSnapshot loads a snapshot from a JSON file
func LoadSnapshot(filepath string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// TensorToWeightData converts a tensor to serializable weight data
func TensorToWeightData(name string, t *tensor.Tensor) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64{}, t.Data...), // copy
	}
}

// WeightDataToTensor converts weight data back to a tensor
func WeightDataToTensor(wd *WeightData) *tensor.Tensor {
	t := tensor.New(wd.Shape...)
	copy(t.Data, wd.Data)
	return t
}

// ParamsToWeights copies the current parameter values.
func ParamsToWeights(params []*nn.Param) []*WeightData {
	out := make([]*WeightData, len(params))
	for i, p := range params {
		out[i] = TensorToWeightData(p.Name, p.Value)
	}
	return out
}

// RestoreParams copies stored values into params. Count and shapes must match.
func RestoreParams(params []*nn.Param, weights []*WeightData) error {
	if len(params) != len(weights) {
		return fmt.Errorf("snapshot has %d parameters, model has %d", len(weights), len(params))
	}
	for i, p := range params {
		w := weights[i]
		if !tensor.SameShape(p.Value, WeightDataToTensor(w)) {
			return fmt.Errorf("parameter %d (%s): snapshot shape %v, model shape %v: %w", i, p.Name, w.Shape, p.Value.Shape, nn.ErrShape)
		}
		copy(p.Value.Data, w.Data)
	}
	return nil
}
