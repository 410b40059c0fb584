package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/chorus-node")

	if conf.DatabaseDir != filepath.Join("/tmp/chorus-node", DefaultBadgerFile) {
		t.Fatalf("default db dir should follow the datadir, got %s", conf.DatabaseDir)
	}
	if conf.Keyfile() != filepath.Join("/tmp/chorus-node", DefaultKeyfile) {
		t.Fatalf("unexpected keyfile %s", conf.Keyfile())
	}

	conf.DatabaseDir = "/var/db"
	conf.SetDataDir("/tmp/elsewhere")
	if conf.DatabaseDir != "/var/db" {
		t.Fatalf("an explicit db dir should be kept, got %s", conf.DatabaseDir)
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"info":    logrus.InfoLevel,
		"warn":    logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"bananas": logrus.DebugLevel,
	}
	for in, expected := range cases {
		if l := LogLevel(in); l != expected {
			t.Fatalf("LogLevel(%s) should be %v, not %v", in, expected, l)
		}
	}
}

func TestLoggerWritesLogFile(t *testing.T) {
	conf := NewDefaultConfig()
	conf.LogLevel = "info"
	conf.LogFile = filepath.Join(t.TempDir(), "chorus.log")

	logger := conf.Logger()
	logger.WithField("answer", 42).Info("hello file")

	data, err := os.ReadFile(conf.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello file") || !strings.Contains(string(data), `"prefix":"chorus"`) {
		t.Fatalf("log file does not contain the entry: %s", data)
	}
}
