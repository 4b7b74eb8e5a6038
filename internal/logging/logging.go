package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dhcsousa/hospitopt/internal/config"
)

// levelNames follows the loguru-style levels the rest of the system uses.
// SUCCESS has no logrus equivalent and maps to INFO; CRITICAL maps to ERROR
// so that critical records are still emitted rather than calling os.Exit.
var levelNames = map[string]logrus.Level{
	"TRACE":    logrus.TraceLevel,
	"DEBUG":    logrus.DebugLevel,
	"INFO":     logrus.InfoLevel,
	"SUCCESS":  logrus.InfoLevel,
	"WARNING":  logrus.WarnLevel,
	"ERROR":    logrus.ErrorLevel,
	"CRITICAL": logrus.ErrorLevel,
}

// Setup builds the process logger: console always, rotating file sink when
// enabled. The level string comes from LOG_LEVEL.
func Setup(level string, cfg config.Logging) (*logrus.Logger, error) {
	if level == "" {
		level = "INFO"
	}
	lvl, ok := levelNames[strings.ToUpper(level)]
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	log := logrus.New()
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	var out io.Writer = os.Stderr
	if cfg.EnableFileLogging {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename: filepath.Join(cfg.LogDir, cfg.LogFileName),
			MaxSize:  cfg.RotationMaxMB,
			MaxAge:   cfg.RetentionDays,
			Compress: cfg.Compress,
		}
		out = io.MultiWriter(os.Stderr, rotating)
	}
	log.SetOutput(out)

	return log, nil
}
