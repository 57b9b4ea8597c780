package inject

import "errors"

var (
	errNotTargetRank     = errors.New("inject: this rank is not the configured injection target")
	errBudgetExhausted   = errors.New("inject: injection budget exhausted")
	errTooSoon           = errors.New("inject: minimum interval since last injection not elapsed")
	errNoSuchDataset     = errors.New("inject: no such dataset")
	errUnsupportedKind   = errors.New("inject: bit-flip only supported for float and double datasets")
	errElementOutOfRange = errors.New("inject: element index out of range")
	errBitOutOfRange     = errors.New("inject: bit position out of range")
)
