// internal/domain/settings.go
package domain

// Runtime settings stored in system_config.
const (
	SettingMinAmount       = "recharge_min_amount"
	SettingOrderTimeout    = "recharge_timeout"
	SettingWalletAddress   = "recharge_wallet"
	SettingVIPMonthlyPrice = "vip_monthly_price"
)

var KnownSettings = []string{
	SettingMinAmount,
	SettingOrderTimeout,
	SettingWalletAddress,
	SettingVIPMonthlyPrice,
}

func IsKnownSetting(key string) bool {
	for _, k := range KnownSettings {
		if k == key {
			return true
		}
	}
	return false
}
