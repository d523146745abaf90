package store

import (
	"strings"

	payo "github.com/payoapp/payo/pkg"
	"github.com/shopspring/decimal"
)

func parseAmount(s string) (payo.CoinAmount, error) {
	if s == "" {
		return payo.ZeroCoins, nil
	}
	return decimal.NewFromString(s)
}

func dbErr(err error, where string) error {
	if strings.Contains(err.Error(), "UNIQUE constraint") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint") {
		return payo.NewErr(payo.AlreadyExists, "%s: %v", where, err)
	}
	if strings.Contains(err.Error(), "database is locked") {
		return payo.NewErr(payo.DBConflict, "%s: %v", where, err)
	}
	return payo.NewErr(payo.UnknownError, "%s: %v", where, err)
}
