// Package handler implements components 4.F (order handler), 4.G (trade
// handler) and 4.H (cancel handler): the three message handlers that
// mutate a book.Book in response to ticks.
package handler

import "cosmossdk.io/errors"

const codespace = "lobcore"

var (
	// ErrOrderNotFound is raised when a cancel references an appl-seq not
	// resident in the order directory (§7); for cancels against the
	// illegal-order set it is absorbed silently (§4.H item 2) and never
	// constructed. OnExecution never returns it: a trade leg whose seq is not
	// resident is skipped.
	ErrOrderNotFound = errors.Register(codespace, 10, "order not found")

	// ErrPhaseInvariant flags a recoverable state-machine inconsistency:
	// SZSE seq non-monotonicity, volatility-break inconsistencies, a held
	// MARKET order flushed without ever trading. Logged, not fatal.
	ErrPhaseInvariant = errors.Register(codespace, 11, "phase invariant violation")

	// ErrPriceOverflowFatal is raised when a LIMIT BID arrives with the
	// ORDER_PRICE_OVERFLOW sentinel — §3 calls this a fatal inconsistency,
	// unlike the general Overflow class which clamps and continues.
	ErrPriceOverflowFatal = errors.Register(codespace, 12, "LIMIT BID price overflow is a fatal inconsistency")
)
