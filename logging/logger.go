package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger 全局日志实例
var Logger = &logrus.Logger{
	Out: os.Stdout,
	Formatter: &logrus.TextFormatter{
		DisableLevelTruncation: true,
		PadLevelText:           true,
		FullTimestamp:          true,
	},
	Hooks: make(logrus.LevelHooks),
	Level: logrus.InfoLevel,
}

// SetLevel 设置日志级别，无法解析时保持info
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Logger.WithFields(logrus.Fields{"module": "logging", "level": level}).Warn("未知日志级别，使用info")
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)
}

// For 返回带模块和方法字段的日志条目
func For(module, method string) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{"module": module, "method": method})
}
