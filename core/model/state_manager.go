// Package model provides state management and persistence shared by the
// feature selection models.
package model

import (
	"sync"

	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

// StateManager tracks whether a model has been trained, in a thread-safe manner.
type StateManager struct {
	Trained bool // Public for encoding
	mu      sync.RWMutex

	NFeatures int
	NSamples  int
}

// NewStateManager creates a new StateManager instance.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsTrained returns whether the model has been trained.
func (s *StateManager) IsTrained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Trained
}

// SetTrained marks the model as trained.
func (s *StateManager) SetTrained() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trained = true
}

// Invalidate clears the trained flag but keeps the dimensions.
// Models call it whenever weights or constraints change.
func (s *StateManager) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trained = false
}

// SetDimensions sets the number of features and samples the model operates on.
func (s *StateManager) SetDimensions(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NFeatures = nFeatures
	s.NSamples = nSamples
}

// GetDimensions returns the number of features and samples.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples
}

// RequireTrained returns an error if the model has not been trained.
func (s *StateManager) RequireTrained(modelName, method string) error {
	if !s.IsTrained() {
		return errors.NewConfigurationErrorf(modelName+"."+method,
			"model has not been trained yet. Call Train() before using %s()", method)
	}
	return nil
}
