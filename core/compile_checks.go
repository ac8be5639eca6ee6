package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Installer         = (*Service)(nil)
	_ InstallStateStore = (*MemoryInstallStateStore)(nil)
	_ MetricsRecorder   = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
