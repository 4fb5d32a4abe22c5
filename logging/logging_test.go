package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func TestObservedLevels(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)

	logger.Debugw("staged byte", "addr", 0x50, "idx", 1)
	test.That(t, logs.Len(), test.ShouldEqual, 1)
	entry := logs.All()[0]
	test.That(t, entry.Message, test.ShouldEqual, "staged byte")
	test.That(t, entry.Level, test.ShouldEqual, zapcore.DebugLevel)
	test.That(t, entry.ContextMap()["addr"], test.ShouldEqual, int64(0x50))

	logger.SetLevel(WARN)
	logger.Info("dropped")
	logger.Debugf("dropped %d", 1)
	test.That(t, logs.Len(), test.ShouldEqual, 1)

	logger.Warnf("nack from 0x%02x", 0x50)
	test.That(t, logs.Len(), test.ShouldEqual, 2)
	test.That(t, logs.All()[1].Message, test.ShouldEqual, "nack from 0x50")
}

func TestSubloggerNaming(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	sub := logger.Sublogger("usi")
	subsub := sub.Sublogger("engine")

	subsub.Info("hello")
	test.That(t, logs.FilterLoggerName("usi.engine").Len(), test.ShouldEqual, 1)

	// Subloggers own their level.
	sub.SetLevel(ERROR)
	sub.Warn("quiet")
	logger.Warn("loud")
	test.That(t, logs.FilterMessage("quiet").Len(), test.ShouldEqual, 0)
	test.That(t, logs.FilterMessage("loud").Len(), test.ShouldEqual, 1)
}

func TestWriterAppenderFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("tinywire")
	logger.AddAppender(NewWriterAppender(zapcore.AddSync(&buf)))

	logger.Infow("transfer", "len", 3)
	test.That(t, logger.Sync(), test.ShouldBeNil)

	parts := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\t")
	test.That(t, len(parts), test.ShouldBeGreaterThanOrEqualTo, 5)
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "tinywire")
	test.That(t, parts[3], test.ShouldContainSubstring, "logging/logging_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "transfer")
	test.That(t, parts[5], test.ShouldEqual, `{"len": 3}`)
}

func TestWriterLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("cli", &buf, WARN)
	logger.Info("hidden")
	logger.Warnf("shown %d", 1)
	test.That(t, buf.String(), test.ShouldNotContainSubstring, "hidden")
	test.That(t, buf.String(), test.ShouldContainSubstring, "shown 1")
	test.That(t, buf.String(), test.ShouldContainSubstring, "Z\tWARN\tcli")
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, WARN.String(), test.ShouldEqual, "Warn")
}
