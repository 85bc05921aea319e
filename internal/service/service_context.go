package service

import (
	"depth-test/internal/config"
)

// ServiceContext 把真实的剪贴板/驱动/批量执行器装配起来。
// 剪贴板和目标窗口是整个进程唯一的一份外部资源，在这里统一获取，
// 避免散落的全局状态。
type ServiceContext struct {
	Cfg       *config.Config
	Clipboard ClipboardBridge
	Driver    UIDriver
	Batch     *BatchRunner
}

// NewServiceContext 装配失败（拿不到剪贴板）属于启动期致命错误
func NewServiceContext(cfg *config.Config) (*ServiceContext, error) {
	clip, err := NewSystemClipboard()
	if err != nil {
		return nil, err
	}
	driver := NewRobotDriver(cfg.Target, clip, cfg.Automation.SubmitDelayMS)

	return &ServiceContext{
		Cfg:       cfg,
		Clipboard: clip,
		Driver:    driver,
		Batch:     NewBatchRunner(cfg, driver, clip),
	}, nil
}

// Store 返回默认输出目录对应的结果存储
func (s *ServiceContext) Store() *ResultStore {
	return NewResultStore(s.Cfg.Output.Dir)
}
