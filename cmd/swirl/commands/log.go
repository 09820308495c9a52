package commands

import (
	"os"
	"path/filepath"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// addFileHook writes info, warn and error logs to separate files in dir, on
// top of the console output.
func addFileHook(logger *logrus.Logger, dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	pathMap := lfshook.PathMap{
		logrus.InfoLevel:  filepath.Join(dir, "info.log"),
		logrus.WarnLevel:  filepath.Join(dir, "warn.log"),
		logrus.ErrorLevel: filepath.Join(dir, "error.log"),
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return nil
}
