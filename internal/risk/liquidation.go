package risk

// 强平价估算。只是跨平台的一阶近似：不考虑分档维持保证金率、
// 持仓手续费和逐仓追加保证金，精确值以交易所持仓接口返回的为准。

// DefaultMaintenanceMarginRate 低杠杆主流合约的典型维持保证金率
const DefaultMaintenanceMarginRate = 0.004

// EstimateLiquidationPrice 按开仓价、杠杆和维持保证金率估算强平价。
//
//	多头：entry * (1 - 1/leverage + mmr)
//	空头：entry * (1 + 1/leverage - mmr)
//
// maintenanceMarginRate <= 0 时用 DefaultMaintenanceMarginRate。
// leverage <= 0 没有意义，返回 0。
func EstimateLiquidationPrice(entryPrice float64, leverage int, isLong bool, maintenanceMarginRate float64) float64 {
	if leverage <= 0 || entryPrice <= 0 {
		return 0
	}
	if maintenanceMarginRate <= 0 {
		maintenanceMarginRate = DefaultMaintenanceMarginRate
	}

	inv := 1.0 / float64(leverage)
	if isLong {
		price := entryPrice * (1 - inv + maintenanceMarginRate)
		if price < 0 {
			return 0
		}
		return price
	}
	return entryPrice * (1 + inv - maintenanceMarginRate)
}
