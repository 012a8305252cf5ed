package utils

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerLevel(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{" WARN ", logrus.WarnLevel},
		{"", logrus.InfoLevel},
		{"chatty", logrus.InfoLevel},
	}
	for _, tt := range tests {
		if got := NewLogger(tt.level, "", &bytes.Buffer{}).GetLevel(); got != tt.want {
			t.Errorf("level %q = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("info", "json", &buf).WithField("run_id", "r1").Info("Run applied")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json output %q: %v", buf.String(), err)
	}
	if entry["run_id"] != "r1" || entry["msg"] != "Run applied" {
		t.Errorf("entry = %v", entry)
	}

	buf.Reset()
	NewLogger("info", "text", &buf).Info("Run applied")
	if !strings.Contains(buf.String(), `msg="Run applied"`) {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestConfigureLogger(t *testing.T) {
	l := ConfigureLogger("error", "text")
	if l != GetLogger() {
		t.Fatal("ConfigureLogger must reconfigure the shared logger")
	}
	if l.GetLevel() != logrus.ErrorLevel {
		t.Errorf("level = %v", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("formatter = %T", l.Formatter)
	}
	ConfigureLogger("info", "json")
}
