package testutil

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLogger(t *testing.T) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
