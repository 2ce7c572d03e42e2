package output

import (
	"fmt"
	"strings"

	"github.com/karmalens/karmalens/internal/collectlog"
)

type analysisSection struct {
	Title string
	Lines []string
}

func analysisSections(a collectlog.Analysis) []analysisSection {
	sections := make([]analysisSection, 0, 5)
	for _, bucket := range []struct {
		title string
		users []string
	}{
		{"Rate limited", a.RateLimitedUsers},
		{"Suspended", a.SuspendedUsers},
		{"Permanent failures", a.PermanentUsers},
		{"Retryable", a.RetryableUsers},
	} {
		if len(bucket.users) == 0 {
			continue
		}
		sections = append(sections, analysisSection{
			Title: fmt.Sprintf("%s (%d)", bucket.title, len(bucket.users)),
			Lines: []string{strings.Join(bucket.users, ", ")},
		})
	}
	if len(a.Recommendations) > 0 {
		sections = append(sections, analysisSection{Title: "Recommendations", Lines: a.Recommendations})
	}
	return sections
}

func renderAnalysisSections(sections []analysisSection, markdown bool) string {
	if len(sections) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, section := range sections {
		if markdown {
			sb.WriteString(fmt.Sprintf("\n### %s\n\n", section.Title))
			for _, line := range section.Lines {
				sb.WriteString("- " + line + "\n")
			}
			continue
		}
		sb.WriteString(fmt.Sprintf("\n%s:\n", section.Title))
		for _, line := range section.Lines {
			sb.WriteString("  - " + line + "\n")
		}
	}
	return sb.String()
}
