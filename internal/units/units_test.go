package units

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestParseEther(t *testing.T) {
	cases := []struct {
		name    string
		amount  string
		wantWei string
		wantErr string
	}{
		{name: "half", amount: "0.5", wantWei: "500000000000000000"},
		{name: "whole", amount: "2", wantWei: "2000000000000000000"},
		{name: "leading dot", amount: ".25", wantWei: "250000000000000000"},
		{name: "trailing dot", amount: "1.", wantWei: "1000000000000000000"},
		{name: "one wei", amount: "0.000000000000000001", wantWei: "1"},
		{name: "spaces", amount: " 1.5 ", wantWei: "1500000000000000000"},
		{name: "empty", amount: "", wantErr: "amount is empty"},
		{name: "zero", amount: "0", wantErr: "greater than zero"},
		{name: "zero fraction", amount: "0.000", wantErr: "greater than zero"},
		{name: "negative", amount: "-1", wantErr: "not a decimal number"},
		{name: "letters", amount: "abc", wantErr: "not a decimal number"},
		{name: "only dot", amount: ".", wantErr: "not a decimal number"},
		{name: "exponent", amount: "1e18", wantErr: "not a decimal number"},
		{name: "too precise", amount: "0.0000000000000000001", wantErr: "fractional digits"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wei, err := ParseEther(tc.amount)
			if tc.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.wantWei, wei.Dec())
		})
	}
}

func TestFormatEther(t *testing.T) {
	cases := []struct {
		wei  string
		want string
		four string
	}{
		{wei: "0", want: "0", four: "0.0000"},
		{wei: "500000000000000000", want: "0.5", four: "0.5000"},
		{wei: "1234567890000000000", want: "1.23456789", four: "1.2345"},
		{wei: "3000000000000000000", want: "3", four: "3.0000"},
		{wei: "1", want: "0.000000000000000001", four: "0.0000"},
	}
	for _, tc := range cases {
		v := uint256.MustFromDecimal(tc.wei)
		assert.Equal(t, tc.want, FormatEther(v), tc.wei)
		assert.Equal(t, tc.four, FormatEtherFixed(v, 4), tc.wei)
	}
	assert.Equal(t, "0", FormatEther(nil))
}

func TestIsAddress(t *testing.T) {
	cases := []struct {
		name string
		addr string
		want bool
	}{
		{name: "lowercase", addr: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", want: true},
		{name: "checksummed", addr: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", want: true},
		{name: "bad checksum", addr: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", want: false},
		{name: "no prefix", addr: "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", want: true},
		{name: "short", addr: "0x1234", want: false},
		{name: "not hex", addr: "0xzzzeb6053f3e94c9b9a09f33669435e7ef1beaed", want: false},
		{name: "empty", addr: "", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsAddress(tc.addr))
		})
	}
}
