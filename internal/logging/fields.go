package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ResolveFields 提供资产分类/分区/命中状态字段，供请求解析日志复用。
func ResolveFields(class, partition string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"class":     class,
		"partition": partition,
		"cache_hit": cacheHit,
	}
}

// LifecycleFields 构建生命周期阶段日志字段（install/activate 等）。
func LifecycleFields(action, generation string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"generation": generation,
	}
}
