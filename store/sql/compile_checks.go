package sqlstore

import "github.com/goliatone/go-shopinstall/core"

var _ core.InstallStateStore = (*InstallStateStore)(nil)
