package infrastructure

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dallasmenard-github/NiagaraGetData/internal/domain"
)

// StateFileName is the sidecar file holding resume state, one per
// output-folder-plus-date scope.
const StateFileName = ".download_state.json"

// StateStore persists resume state as a JSON sidecar file in the output
// partition folder. Only the engine's result-consumption loop writes it, so
// no file locking is needed.
type StateStore struct {
	fs     afero.Fs
	logger *zap.Logger
}

// NewStateStore creates a state store backed by the OS filesystem.
func NewStateStore(logger *zap.Logger) *StateStore {
	return NewStateStoreWithFs(afero.NewOsFs(), logger)
}

// NewStateStoreWithFs creates a state store on the given filesystem.
func NewStateStoreWithFs(fs afero.Fs, logger *zap.Logger) *StateStore {
	return &StateStore{fs: fs, logger: logger}
}

// Path returns the state file path for an output folder.
func (s *StateStore) Path(folder string) string {
	return filepath.Join(folder, StateFileName)
}

// Load reads the state for an output folder. A missing, corrupt or
// schema-mismatched file yields nil (fresh start); corruption is logged as
// a warning, never returned as an error.
func (s *StateStore) Load(folder string) *domain.ResumeState {
	path := s.Path(folder)

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Unreadable state file, starting fresh",
				zap.String("path", path), zap.Error(err))
		}
		return nil
	}

	var state domain.ResumeState
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&state); err != nil {
		s.logger.Warn("Corrupt state file, starting fresh",
			zap.String("path", path), zap.Error(err))
		return nil
	}

	return &state
}

// Save writes the state for an output folder, creating the folder if
// needed.
func (s *StateStore) Save(folder string, state *domain.ResumeState) error {
	if err := s.fs.MkdirAll(folder, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	return afero.WriteFile(s.fs, s.Path(folder), data, 0644)
}
