package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestProdLogsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := setup(&buf, "prod", "")
	l.WithField("operation", "test").Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("prod output is not JSON: %q", buf.String())
	}
	if line["operation"] != "test" || line["msg"] != "hello" {
		t.Errorf("line = %v", line)
	}
}

func TestLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	l := setup(&buf, "local", "warn")
	if l.Logger.GetLevel() != log.WarnLevel {
		t.Fatalf("level = %v", l.Logger.GetLevel())
	}
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered, got %q", buf.String())
	}
}
