// Package metrics 暴露执行核心的 expvar 计数器与 pprof 调试端点。
// 刻意不引入指标框架：下单链路只需要几个计数器，expvar 够用。
package metrics

import "expvar"

var (
	OrdersPlaced   = expvar.NewInt("orders_placed")
	OrdersFailed   = expvar.NewInt("orders_failed")
	OrdersRejected = expvar.NewInt("orders_rejected") // 触网前被拒（尺寸校验/熔断）
	OrdersDryRun   = expvar.NewInt("orders_dry_run")
	OrdersCanceled = expvar.NewInt("orders_canceled")
)
