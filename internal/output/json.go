package output

import (
	"encoding/json"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatUsers(rows []UserRow) (string, error) {
	if rows == nil {
		rows = []UserRow{}
	}
	return f.marshal(rows)
}

func (f *JSONFormatter) FormatHistory(history History) (string, error) {
	return f.marshal(history)
}

func (f *JSONFormatter) FormatReport(report Report) (string, error) {
	return f.marshal(report)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
