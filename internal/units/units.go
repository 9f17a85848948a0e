// Package units converts between decimal ether strings and wei amounts.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EtherDecimals is the number of fractional digits of one ether.
const EtherDecimals = 18

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)

// ParseEther parses a positive decimal ether amount such as "0.5" into wei.
func ParseEther(amount string) (*uint256.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && frac == "" && whole == "" {
		return nil, fmt.Errorf("amount %q is not a decimal number", amount)
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (hasDot && frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("amount %q is not a decimal number", amount)
	}
	if len(frac) > EtherDecimals {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", amount, EtherDecimals)
	}

	digits := whole + frac + strings.Repeat("0", EtherDecimals-len(frac))
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a decimal number", amount)
	}
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be greater than zero")
	}

	v, overflow := uint256.FromBig(wei)
	if overflow {
		return nil, fmt.Errorf("amount %q is too large", amount)
	}
	return v, nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *uint256.Int) string {
	if wei == nil {
		return "0"
	}
	q, r := new(big.Int).QuoRem(wei.ToBig(), weiPerEther, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := leftPad(r.String(), EtherDecimals)
	return q.String() + "." + strings.TrimRight(frac, "0")
}

// FormatEtherFixed renders wei with exactly places fractional digits, truncating.
func FormatEtherFixed(wei *uint256.Int, places int) string {
	if places < 0 {
		places = 0
	}
	if places > EtherDecimals {
		places = EtherDecimals
	}
	if wei == nil {
		wei = new(uint256.Int)
	}
	q, r := new(big.Int).QuoRem(wei.ToBig(), weiPerEther, new(big.Int))
	if places == 0 {
		return q.String()
	}
	frac := leftPad(r.String(), EtherDecimals)
	return q.String() + "." + frac[:places]
}

// IsAddress reports whether s is a syntactically valid hex account address.
// Mixed-case input must carry a valid EIP-55 checksum.
func IsAddress(s string) bool {
	if !common.IsHexAddress(s) {
		return false
	}
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(s).Hex() == "0x"+body
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
