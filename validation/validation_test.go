package validation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddress(t *testing.T) {
	assert.True(t, ValidateAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc").IsValid)
	assert.True(t, ValidateAddress("0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc").IsValid)

	for _, bad := range []string{"", "   ", "0x123", "b4e16d0168e52d35cacd2c6185b44281ec28c9dc", "0xZZe16d0168e52d35cacd2c6185b44281ec28c9dc"} {
		result := ValidateAddress(bad)
		assert.False(t, result.IsValid, bad)
		assert.NotEmpty(t, result.Error, bad)
	}
}

func TestValidateAmount(t *testing.T) {
	cases := map[string]bool{
		"1":      true,
		"0.0001": true,
		"1e3":    true,
		"0":      false,
		"-1":     false,
		"abc":    false,
		"":       false,
		"NaN":    false,
		"Inf":    false,
	}
	for amount, ok := range cases {
		assert.Equal(t, ok, ValidateAmount(amount).IsValid, amount)
	}
}

func TestValidateSlippage(t *testing.T) {
	assert.True(t, ValidateSlippage(0.5).IsValid)
	assert.True(t, ValidateSlippage(50).IsValid)
	assert.False(t, ValidateSlippage(0).IsValid)
	assert.False(t, ValidateSlippage(-1).IsValid)
	assert.False(t, ValidateSlippage(50.01).IsValid)
	assert.False(t, ValidateSlippage(math.NaN()).IsValid)
}

func TestParseUnits(t *testing.T) {
	units, err := ParseUnits("1.5", 18)
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", units.Dec())

	units, err = ParseUnits("2.500000", 6)
	require.NoError(t, err)
	require.Equal(t, "2500000", units.Dec())

	units, err = ParseUnits("12", 0)
	require.NoError(t, err)
	require.Equal(t, uint64(12), units.Uint64())

	_, err = ParseUnits("0.0000001", 6)
	require.Error(t, err)

	_, err = ParseUnits("1e80", 18)
	require.Error(t, err)

	assert.False(t, ValidateTokenAmount("1.1234567", 6).IsValid)
	assert.True(t, ValidateTokenAmount("1.123456", 6).IsValid)
}
