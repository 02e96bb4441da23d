// Package money converts between the ledger's minor-unit integers (wei)
// and display-form decimal strings. All arithmetic on monetary values in
// this repository happens on *big.Int wei; display decimals exist only
// at the boundary.
package money

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"

	"microloan/go-client/internal/fault"
)

// WeiDecimals is the ledger's fixed-point precision.
const WeiDecimals = 18

var weiPerEther = big.NewInt(params.Ether)

// ParseAmount converts a display-form decimal string into wei. The
// conversion is exact: values with more than 18 fractional digits are
// rejected rather than rounded, as are zero and negative amounts.
func ParseAmount(display string) (*big.Int, error) {
	d, err := decimal.NewFromString(display)
	if err != nil {
		return nil, fault.Validation("amount", "not a decimal number")
	}
	if d.Sign() <= 0 {
		return nil, fault.Validation("amount", "must be positive")
	}
	shifted := d.Shift(WeiDecimals)
	if !shifted.IsInteger() {
		return nil, fault.Validation("amount", "more than 18 decimal places")
	}
	return shifted.BigInt(), nil
}

// FormatWei renders a wei value as a display decimal with trailing
// zeros trimmed. FormatWei(ParseAmount(s)) round-trips exactly for any
// value representable at 18 decimal places.
func FormatWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -WeiDecimals).String()
}

// WholeEther returns n ether in wei. Test and example helper.
func WholeEther(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), weiPerEther)
}
