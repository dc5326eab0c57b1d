package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// SessionFields 提供设备/会话文件字段，供记录与维护日志复用。
func SessionFields(deviceName, deviceID, file string, session int) logrus.Fields {
	return logrus.Fields{
		"device":    deviceName,
		"device_id": deviceID,
		"file":      file,
		"session":   session,
	}
}
