package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New はレベルと環境に合わせたloggerを作る。
// dev以外はJSONで出す（集約前提）。
func New(level string, dev bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if dev {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	log.SetLevel(lv)

	return log
}
