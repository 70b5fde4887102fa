package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetupRoutesLevels(t *testing.T) {
	var stdout, stderr bytes.Buffer
	Setup(Config{Level: "debug", Format: "json", Stdout: &stdout, Stderr: &stderr})
	defer Setup(Config{Level: "info", Format: "console"})

	Info("hello")
	Error("boom")
	Debugf("value %d", 42)

	assert.Contains(t, stdout.String(), `"message":"hello"`)
	assert.Contains(t, stdout.String(), `"message":"value 42"`)
	assert.NotContains(t, stdout.String(), "boom")
	assert.Contains(t, stderr.String(), `"message":"boom"`)
}

func TestSetupRespectsLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	Setup(Config{Level: "warn", Format: "json", Stdout: &stdout, Stderr: &stderr})
	defer Setup(Config{Level: "info", Format: "console"})

	Info("quiet")
	Warn("loud")

	assert.NotContains(t, stdout.String(), "quiet")
	assert.Contains(t, stdout.String(), "loud")
}

func TestComponentTagsLogger(t *testing.T) {
	var stdout bytes.Buffer
	Setup(Config{Level: "info", Format: "json", Stdout: &stdout, Stderr: &stdout})
	defer Setup(Config{Level: "info", Format: "console"})

	l := Component("registry")
	l.Info().Msg("loaded")

	assert.Contains(t, stdout.String(), `"component":"registry"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}
