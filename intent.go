package revshare

import (
	"strconv"

	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/id"
)

// The constructors below build the auth.Intent each operation verifies its
// credential against. Clients signing with auth.Sign or auth.KeySigner must
// use the same constructor with the same arguments as the call they make.

// InitPoolIntent describes InitPool on poolKey.
func InitPoolIntent(poolKey string, feePercent uint8) auth.Intent {
	return auth.Intent{PoolKey: poolKey, Op: OpInitPool, Args: []string{strconv.FormatUint(uint64(feePercent), 10)}}
}

// RegisterPayeeIntent describes RegisterPayee on poolKey.
func RegisterPayeeIntent(poolKey, externalID string) auth.Intent {
	return auth.Intent{PoolKey: poolKey, Op: OpRegisterPayee, Args: []string{externalID}}
}

// DepositIntent describes Deposit on poolKey.
func DepositIntent(poolKey string, amount uint64, source event.RevenueSource) auth.Intent {
	return auth.Intent{PoolKey: poolKey, Op: OpDeposit, Args: []string{strconv.FormatUint(amount, 10), string(source)}}
}

// UsagePaymentIntent describes ProcessUsagePayment on poolKey.
func UsagePaymentIntent(poolKey string, item UsageItem) auth.Intent {
	return auth.Intent{PoolKey: poolKey, Op: OpProcessUsagePayment, Args: usageArgs(nil, item)}
}

// BatchProcessIntent describes BatchProcess on poolKey. Item order matters.
func BatchProcessIntent(poolKey string, items []UsageItem) auth.Intent {
	args := make([]string, 0, 4*len(items))
	for _, item := range items {
		args = usageArgs(args, item)
	}
	return auth.Intent{PoolKey: poolKey, Op: OpBatchProcess, Args: args}
}

// WithdrawIntent describes Withdraw on poolKey.
func WithdrawIntent(poolKey string, payeeID id.PayeeID) auth.Intent {
	return auth.Intent{PoolKey: poolKey, Op: OpWithdraw, Args: []string{payeeID.String()}}
}

// TransferAdministrationIntent describes TransferAdministration on poolKey.
func TransferAdministrationIntent(poolKey string, newAdmin auth.Identity) auth.Intent {
	return auth.Intent{PoolKey: poolKey, Op: OpTransferAdministration, Args: []string{string(newAdmin)}}
}

// VerifyPayeeIntent describes VerifyPayee on poolKey.
func VerifyPayeeIntent(poolKey string, payeeID id.PayeeID, verified bool) auth.Intent {
	return auth.Intent{PoolKey: poolKey, Op: OpVerifyPayee, Args: []string{payeeID.String(), strconv.FormatBool(verified)}}
}

func usageArgs(args []string, item UsageItem) []string {
	return append(args,
		item.PayeeID.String(),
		item.ExternalID,
		strconv.FormatUint(item.Units, 10),
		strconv.FormatUint(item.Rate, 10),
	)
}
