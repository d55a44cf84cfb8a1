package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const reportFile = "last_run.json"

// Storage handles the data directory and artifact writes
type Storage struct {
	dataDir string
}

// RunReport summarizes the most recent run
type RunReport struct {
	RunID       string            `json:"run_id"`
	Command     string            `json:"command"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	TargetDate  string            `json:"target_date,omitempty"`
	PDFPath     string            `json:"pdf_path,omitempty"`
	PDFBytes    int64             `json:"pdf_bytes,omitempty"`
	CSVPath     string            `json:"csv_path,omitempty"`
	Samples     int               `json:"samples,omitempty"`
	TestLoss    float64           `json:"test_loss,omitempty"`
	TestAcc     float64           `json:"test_accuracy,omitempty"`
	ModelPath   string            `json:"model_path,omitempty"`
	StepTimings map[string]string `json:"step_timings,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// ExpandPath expands a leading ~/ to the user's home directory
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// New creates a new Storage instance, creating dataDir if needed
func New(dataDir string) (*Storage, error) {
	dataDir, err := ExpandPath(dataDir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
	}, nil
}

// Dir returns the resolved data directory
func (s *Storage) Dir() string {
	return s.dataDir
}

// WriteArtifact writes data to path, replacing any previous file.
// The parent directory is created if missing.
func WriteArtifact(path string, data []byte) error {
	path, err := ExpandPath(path)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (s *Storage) reportPath() string {
	return filepath.Join(s.dataDir, reportFile)
}

// LoadReport loads the last run report. Returns nil, nil if none exists.
func (s *Storage) LoadReport() (*RunReport, error) {
	data, err := os.ReadFile(s.reportPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading run report: %w", err)
	}

	var report RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parsing run report: %w", err)
	}

	return &report, nil
}

// SaveReport overwrites the last run report
func (s *Storage) SaveReport(report *RunReport) error {
	if report.FinishedAt.IsZero() {
		report.FinishedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run report: %w", err)
	}

	if err := os.WriteFile(s.reportPath(), data, 0644); err != nil {
		return fmt.Errorf("writing run report: %w", err)
	}

	return nil
}
