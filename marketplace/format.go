package marketplace

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// TruncateAddress shortens an address to its display form,
// "0x1234...abcd".
func TruncateAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

// FormatEther renders a wei amount as a decimal ether string with
// trailing zeros trimmed. A nil amount renders as "0".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}

	quo := new(big.Int)
	rem := new(big.Int)
	quo.QuoRem(wei, big.NewInt(params.Ether), rem)

	if rem.Sign() == 0 {
		return quo.String()
	}

	frac := strings.TrimRight(leftPadZeros(rem.String(), 18), "0")
	return quo.String() + "." + frac
}

func leftPadZeros(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// MarshalJSON serves the display forms of the creator address and
// usage fee alongside the raw values.
func (l Listing) MarshalJSON() ([]byte, error) {
	type listingAlias Listing
	return json.Marshal(struct {
		listingAlias
		CreatorShort  string `json:"creatorShort"`
		UsageFeeEther string `json:"usageFeeEther"`
	}{
		listingAlias:  listingAlias(l),
		CreatorShort:  TruncateAddress(l.Creator),
		UsageFeeEther: FormatEther(l.UsageFee),
	})
}
