package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.viam.com/test"
)

func TestNewLoggerConfig(t *testing.T) {
	conf := NewLoggerConfig(false)
	test.That(t, conf.Level.Level(), test.ShouldEqual, zap.InfoLevel)
	test.That(t, conf.DisableStacktrace, test.ShouldBeTrue)

	conf = NewLoggerConfig(true)
	test.That(t, conf.Level.Level(), test.ShouldEqual, zap.DebugLevel)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("augbalance", false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logger.Desugar().Core().Enabled(zap.DebugLevel), test.ShouldBeFalse)
	test.That(t, logger.Desugar().Core().Enabled(zap.InfoLevel), test.ShouldBeTrue)
}
