package x402types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name     string
		amount   string
		decimals int
		want     string
		wantErr  bool
	}{
		{name: "whole number", amount: "5", decimals: 6, want: "5000000"},
		{name: "exact precision", amount: "0.0025", decimals: 6, want: "2500"},
		{name: "max precision", amount: "1.123456", decimals: 6, want: "1123456"},
		{name: "no fractional part", amount: "100", decimals: 2, want: "10000"},
		{name: "empty", amount: "", decimals: 6, wantErr: true},
		{name: "negative", amount: "-1", decimals: 6, wantErr: true},
		{name: "excess fractional digits", amount: "1.1234567", decimals: 6, wantErr: true},
		{name: "non-digit integer part", amount: "1a.5", decimals: 6, wantErr: true},
		{name: "non-digit fractional part", amount: "1.5a", decimals: 6, wantErr: true},
		{name: "missing integer part", amount: ".5", decimals: 6, wantErr: true},
		{name: "double decimal point", amount: "1.2.3", decimals: 6, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.amount, tc.decimals)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "5", FormatAmount(big.NewInt(5000000), 6))
	assert.Equal(t, "0.0025", FormatAmount(big.NewInt(2500), 6))
	assert.Equal(t, "0", FormatAmount(big.NewInt(0), 6))
	assert.Equal(t, "0", FormatAmount(nil, 6))
}

func TestParseAmountRoundTrip(t *testing.T) {
	atomic, err := ParseAmount("12.5", 6)
	require.NoError(t, err)
	assert.Equal(t, "12.5", FormatAmount(atomic, 6))
}
