package models

import "strings"

type Coin string

const (
	CoinBTC  Coin = "BTC"
	CoinETH  Coin = "ETH"
	CoinUSDT Coin = "USDT"
)

var Coins = []Coin{CoinBTC, CoinETH, CoinUSDT}

// ParseCoin accepts any letter case ("btc", "Btc").
func ParseCoin(s string) (Coin, bool) {
	c := Coin(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case CoinBTC, CoinETH, CoinUSDT:
		return c, true
	}
	return "", false
}

// Precision is the number of decimal places amounts of the coin are displayed
// and rounded to.
func (c Coin) Precision() int32 {
	switch c {
	case CoinUSDT:
		return 6
	default:
		return 8
	}
}

func (c Coin) String() string {
	return string(c)
}
