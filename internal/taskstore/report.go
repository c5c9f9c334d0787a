package taskstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type ComplexityItem struct {
	TaskID              int     `json:"taskId"`
	TaskTitle           string  `json:"taskTitle"`
	ComplexityScore     float64 `json:"complexityScore"`
	RecommendedSubtasks int     `json:"recommendedSubtasks"`
	ExpansionPrompt     string  `json:"expansionPrompt,omitempty"`
	Reasoning           string  `json:"reasoning,omitempty"`
}

type ReportMeta struct {
	GeneratedAt    time.Time `json:"generatedAt"`
	TasksAnalyzed  int       `json:"tasksAnalyzed"`
	ThresholdScore float64   `json:"thresholdScore"`
	UsedResearch   bool      `json:"usedResearch"`
}

type ComplexityReport struct {
	Meta               ReportMeta       `json:"meta"`
	ComplexityAnalysis []ComplexityItem `json:"complexityAnalysis"`
}

// ReportPath follows the same tag suffix convention as the derived task files.
func (s *Store) ReportPath(tag string) string {
	tag = s.ResolveTag(tag)
	name := "task-complexity-report.json"
	if tag != DefaultTag {
		name = fmt.Sprintf("task-complexity-report_%s.json", tag)
	}
	return filepath.Join(s.ReportsDir(), name)
}

func (s *Store) ReadReport(tag string) (*ComplexityReport, error) {
	data, err := os.ReadFile(s.ReportPath(tag))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r ComplexityReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}

// WriteReport overwrites the tag's complexity report.
func (s *Store) WriteReport(tag string, r *ComplexityReport) error {
	if err := os.MkdirAll(s.ReportsDir(), 0o755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(s.ReportPath(tag), data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// MergeReport replaces analysis items that share a task id with the incoming
// ones and keeps the rest, preserving the existing order first.
func MergeReport(existing *ComplexityReport, items []ComplexityItem, meta ReportMeta) *ComplexityReport {
	if existing == nil {
		return &ComplexityReport{Meta: meta, ComplexityAnalysis: items}
	}

	incoming := make(map[int]ComplexityItem, len(items))
	for _, it := range items {
		incoming[it.TaskID] = it
	}

	var merged []ComplexityItem
	for _, it := range existing.ComplexityAnalysis {
		if repl, ok := incoming[it.TaskID]; ok {
			merged = append(merged, repl)
			delete(incoming, it.TaskID)
			continue
		}
		merged = append(merged, it)
	}
	for _, it := range items {
		if _, ok := incoming[it.TaskID]; ok {
			merged = append(merged, it)
		}
	}

	meta.TasksAnalyzed = len(merged)
	return &ComplexityReport{Meta: meta, ComplexityAnalysis: merged}
}
