package ledger

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatEther renders a wei amount in ether with trailing zeros trimmed.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}

// SubmissionValue is the value sent with a claim: the price plus a 10%
// margin against price movement before the transaction is mined.
func SubmissionValue(cost *big.Int) *big.Int {
	margin := new(big.Int).Div(cost, big.NewInt(10))
	return margin.Add(margin, cost)
}
