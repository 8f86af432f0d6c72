package revshare

import "github.com/xraph/revshare/types"

// Re-export common types for convenience so users don't have to import types package.

// Entity is re-exported from types package.
type Entity = types.Entity

// Split is re-exported from types package.
type Split = types.Split

// MaxFeePercent is the highest fee a pool may charge.
const MaxFeePercent = types.MaxFeePercent

// Re-export amount helpers
var (
	SplitFee    = types.SplitFee
	FormatMajor = types.FormatMajor
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
