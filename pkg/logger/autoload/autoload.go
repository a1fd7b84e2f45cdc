// Package autoload configures the global zerolog logger from LOG_* variables
// as a side effect of being imported.
package autoload

import (
	configx "github.com/tanpawarit/support-router/pkg/config"
	logx "github.com/tanpawarit/support-router/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
