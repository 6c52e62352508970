// Package format renders quantities in Indian market notation.
package format

import (
	"fmt"
	"math"
)

// OI compacts an open-interest contract count into Cr/L/K units.
func OI(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e7:
		return fmt.Sprintf("%.2f Cr", v/1e7)
	case abs >= 1e5:
		return fmt.Sprintf("%.2f L", v/1e5)
	case abs >= 1e3:
		return fmt.Sprintf("%.1f K", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

// SignedOI is OI with an explicit sign for delta displays.
func SignedOI(v float64) string {
	if v > 0 {
		return "+" + OI(v)
	}
	return OI(v)
}

// Rupees renders a premium or P&L amount.
func Rupees(v float64) string {
	return fmt.Sprintf("₹%.2f", v)
}

// Points renders an index point distance with its sign.
func Points(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+%.2f pts", v)
	}
	return fmt.Sprintf("%.2f pts", v)
}
