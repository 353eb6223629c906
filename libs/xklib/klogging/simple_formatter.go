package klogging

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// SimpleFormatter implements logrus.Formatter: one line, "time LEVEL event=... msg=... k=v ...".
// Fields are sorted so simulator logs diff cleanly between runs.
type SimpleFormatter struct{}

func NewSimpleFormatter() logrus.Formatter {
	return &SimpleFormatter{}
}

func (f *SimpleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(entry.Time.Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" ")
	sb.WriteString(strings.ToUpper(entry.Level.String()))
	if event, ok := entry.Data["event"]; ok {
		sb.WriteString(" event=")
		sb.WriteString(fmt.Sprintf("%v", event))
	}
	sb.WriteString(" msg=")
	sb.WriteString(AddingAdditionalQuotes(entry.Message))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == "event" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(" ")
		sb.WriteString(k)
		sb.WriteString("=")
		if str, ok := entry.Data[k].(string); ok {
			sb.WriteString(AddingAdditionalQuotes(str))
		} else {
			sb.WriteString(fmt.Sprintf("%v", entry.Data[k]))
		}
	}
	sb.WriteString("\n")
	return []byte(sb.String()), nil
}

// AddingAdditionalQuotes single-quotes empty strings and strings with spaces, newlines are dropped.
func AddingAdditionalQuotes(v string) string {
	v = strings.ReplaceAll(v, "\n", "")
	if v == "" || strings.Contains(v, " ") {
		return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
	}
	return v
}
