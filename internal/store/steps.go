package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ibeckermayer/replyscout/internal/config"
)

// StepName identifies a pipeline step whose output can be cached for
// debugging.
type StepName string

const (
	StepDiscovered StepName = "discovered"
	StepRanked     StepName = "ranked"
	StepGenerated  StepName = "generated"
)

// stampLayout sorts lexically in time order.
const stampLayout = "2006-01-02T15-04-05.000"

// cacheRoot is overridden in tests.
var cacheRoot = config.CacheDir

func cacheSubdir(parts ...string) (string, error) {
	root, err := cacheRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{root}, parts...)...), nil
}

// writeJSON writes v indented to dir/name, creating dir.
func writeJSON(dir, name string, v any) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// SaveStepOutput writes a step's output for run runID and returns the path.
func SaveStepOutput[T any](step StepName, runID string, data T) (string, error) {
	dir, err := cacheSubdir("steps", string(step))
	if err != nil {
		return "", err
	}
	name := time.Now().Format(stampLayout) + "_" + runID + ".json"
	return writeJSON(dir, name, data)
}

// LoadLatestStepOutput loads the newest cached output of step along with the
// file it came from.
func LoadLatestStepOutput[T any](step StepName) (T, string, error) {
	var zero T
	path, err := LatestStepFile(step)
	if err != nil {
		return zero, "", err
	}
	data, err := LoadStepOutput[T](path)
	if err != nil {
		return zero, "", err
	}
	return data, path, nil
}

// LoadStepOutput decodes a cached step file.
func LoadStepOutput[T any](path string) (T, error) {
	var data T
	raw, err := os.ReadFile(path)
	if err != nil {
		return data, fmt.Errorf("failed to read step output: %w", err)
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal step output %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// StepFiles lists the cached files of step, oldest first.
func StepFiles(step StepName) ([]string, error) {
	dir, err := cacheSubdir("steps", string(step))
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LatestStepFile returns the newest cached file of step.
func LatestStepFile(step StepName) (string, error) {
	files, err := StepFiles(step)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no cached output for step %s", step)
	}
	return files[len(files)-1], nil
}

// PruneStepOutputs keeps the newest keep files of step and returns how many
// were removed.
func PruneStepOutputs(step StepName, keep int) (int, error) {
	files, err := StepFiles(step)
	if err != nil || len(files) <= keep {
		return 0, err
	}
	removed := 0
	for _, f := range files[:len(files)-keep] {
		if err := os.Remove(f); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// LLMExchange is one provider call recorded for debugging
type LLMExchange struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Tone      string    `json:"tone"`
	PostID    string    `json:"post_id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
}

// SaveLLMExchange writes exchange under the llm cache dir. Tones generate
// concurrently, so the name carries post, tone and provider.
func SaveLLMExchange(exchange LLMExchange) (string, error) {
	dir, err := cacheSubdir("llm")
	if err != nil {
		return "", err
	}
	if exchange.Timestamp.IsZero() {
		exchange.Timestamp = time.Now()
	}
	name := strings.Join([]string{
		exchange.Timestamp.Format(stampLayout), exchange.PostID, exchange.Tone, exchange.Provider,
	}, "_") + ".json"
	return writeJSON(dir, name, exchange)
}
