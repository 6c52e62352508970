package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOI(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{23500000, "2.35 Cr"},
		{450000, "4.50 L"},
		{12300, "12.3 K"},
		{980, "980"},
		{-450000, "-4.50 L"},
		{0, "0"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, OI(tc.in))
	}
}

func TestSignedOI(t *testing.T) {
	assert.Equal(t, "+4.50 L", SignedOI(450000))
	assert.Equal(t, "-4.50 L", SignedOI(-450000))
	assert.Equal(t, "0", SignedOI(0))
}

func TestRupees(t *testing.T) {
	assert.Equal(t, "₹249.75", Rupees(249.75))
	assert.Equal(t, "₹-12.50", Rupees(-12.5))
}

func TestPoints(t *testing.T) {
	assert.Equal(t, "+88.40 pts", Points(88.4))
	assert.Equal(t, "-44.20 pts", Points(-44.2))
}
