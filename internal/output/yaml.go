package output

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/karmalens/karmalens/internal/collectlog"
	"github.com/karmalens/karmalens/internal/core"
)

// YAMLFormatter renders results as YAML. The track import command reads the
// users document back.
type YAMLFormatter struct{}

// UsersDocument is the YAML shape of a tracked-user list.
type UsersDocument struct {
	Users []UserRow `yaml:"users"`
}

type yamlError struct {
	Username  string `yaml:"username"`
	Type      string `yaml:"type,omitempty"`
	Retryable bool   `yaml:"retryable"`
	Error     string `yaml:"error"`
}

type yamlRun struct {
	RunID      string      `yaml:"run_id"`
	StartTime  string      `yaml:"start_time"`
	Duration   string      `yaml:"duration"`
	Total      int         `yaml:"total_users"`
	Successful int         `yaml:"successful_collections"`
	Failed     int         `yaml:"failed_collections"`
	Skipped    int         `yaml:"skipped_collections"`
	Batches    int         `yaml:"batches"`
	Errors     []yamlError `yaml:"errors,omitempty"`
}

type yamlReport struct {
	Run      yamlRun             `yaml:"run"`
	Analysis collectlog.Analysis `yaml:"analysis"`
}

func (f *YAMLFormatter) FormatUsers(rows []UserRow) (string, error) {
	return marshalYAML(UsersDocument{Users: rows})
}

func (f *YAMLFormatter) FormatHistory(history History) (string, error) {
	return marshalYAML(history)
}

func (f *YAMLFormatter) FormatReport(report Report) (string, error) {
	run := report.Run
	if run == nil {
		run = &core.CollectionRunMetrics{}
	}
	doc := yamlReport{
		Run: yamlRun{
			RunID:      run.RunID,
			StartTime:  formatTime(run.StartTime),
			Duration:   run.Duration.String(),
			Total:      run.TotalUsers,
			Successful: run.SuccessfulCollections,
			Failed:     run.FailedCollections,
			Skipped:    run.SkippedCollections,
			Batches:    run.Batches,
		},
		Analysis: report.Analysis,
	}
	for _, item := range run.Errors {
		doc.Run.Errors = append(doc.Run.Errors, yamlError{
			Username:  item.Username,
			Type:      string(item.ErrorType),
			Retryable: item.Retryable,
			Error:     item.Error,
		})
	}
	return marshalYAML(doc)
}

func marshalYAML(value any) (string, error) {
	data, err := yaml.Marshal(value)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}
