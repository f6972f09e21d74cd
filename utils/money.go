// utils/money.go
package utils

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var idPrinter = message.NewPrinter(language.Indonesian)

// FormatRupiah renders an amount in minor units the way Indonesian receipts do, e.g. Rp115.000.
func FormatRupiah(amount int64) string {
	return idPrinter.Sprintf("Rp%d", amount)
}
