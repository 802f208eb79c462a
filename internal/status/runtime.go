// Package status reconciles the shapes reported by the inference, retrieval
// and aggregate endpoints into canonical records.
package status

import (
	"encoding/json"
	"fmt"
)

type QueueStats struct {
	ActiveRequests *int `json:"active_requests,omitempty"`
	QueueSize      *int `json:"queue_size,omitempty"`
}

type Queue struct {
	QueueStats    *QueueStats `json:"queue_stats,omitempty"`
	ActiveStreams *int        `json:"active_streams,omitempty"`
}

// RuntimeConfig is the serving configuration the inference server reports.
type RuntimeConfig struct {
	MaxConcurrency *int     `json:"max_concurrency,omitempty"`
	QueueSize      *int     `json:"queue_size,omitempty"`
	QueueTimeout   *float64 `json:"queue_timeout,omitempty"` // seconds
	MLXWarmup      *bool    `json:"mlx_warmup,omitempty"`
}

// ModelRuntimeStatus is the canonical runtime record. Queue and Config
// encode as null when the upstream did not report them.
type ModelRuntimeStatus struct {
	Status    string         `json:"status,omitempty"`
	Loaded    *bool          `json:"loaded,omitempty"`
	ModelID   string         `json:"model_id,omitempty"`
	ModelPath string         `json:"model_path,omitempty"`
	ModelType string         `json:"model_type,omitempty"`
	Queue     *Queue         `json:"queue"`
	Config    *RuntimeConfig `json:"config"`
}

// IsLoaded reports whether the runtime explicitly says a model is loaded.
func (s ModelRuntimeStatus) IsLoaded() bool {
	return s.Loaded != nil && *s.Loaded
}

// diagnostics is the /internal/diagnostics payload.
type diagnostics struct {
	Status             string         `json:"status"`
	HandlerInitialized *bool          `json:"handler_initialized"`
	LoadedModel        *loadedModel   `json:"loaded_model"`
	Queue              *Queue         `json:"queue"`
	Config             *RuntimeConfig `json:"config"`
}

type loadedModel struct {
	ModelID   string `json:"model_id"`
	ModelPath string `json:"model_path"`
	ModelType string `json:"model_type"`
}

// FromStatusEndpoint decodes a /internal/models/status payload, which is
// already canonical.
func FromStatusEndpoint(data []byte) (ModelRuntimeStatus, error) {
	var s ModelRuntimeStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return ModelRuntimeStatus{}, fmt.Errorf("decoding model status: %w", err)
	}
	return s, nil
}

// FromDiagnostics reshapes a /internal/diagnostics payload into the canonical record.
func FromDiagnostics(data []byte) (ModelRuntimeStatus, error) {
	var d diagnostics
	if err := json.Unmarshal(data, &d); err != nil {
		return ModelRuntimeStatus{}, fmt.Errorf("decoding diagnostics: %w", err)
	}

	s := ModelRuntimeStatus{
		Status: d.Status,
		Loaded: d.HandlerInitialized,
		Queue:  d.Queue,
		Config: d.Config,
	}
	if d.LoadedModel != nil {
		s.ModelID = d.LoadedModel.ModelID
		s.ModelPath = d.LoadedModel.ModelPath
		s.ModelType = d.LoadedModel.ModelType
	}
	return s, nil
}
