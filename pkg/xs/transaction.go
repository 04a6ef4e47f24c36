package xs

import "errors"

// WithXST runs f inside a fresh server transaction, retrying the whole
// body from scratch whenever the server reports a conflict.
// The server guarantees a retried body's previous side effects were
// discarded, so re-running the original f is always correct.
func WithXST[T any](c *Client, f func(Handle) (T, error)) (T, error) {
	var zero T
	for {
		tid, err := TransactionStart(NoTransaction(c))
		if err != nil {
			return zero, err
		}
		h := Transaction(c, tid)

		result, ferr := f(h)
		if ferr != nil {
			// Best-effort abort before propagating or retrying; the
			// server reaps abandoned transactions regardless.
			if abortErr := TransactionEnd(h, false); abortErr != nil {
				c.logf("xs: best-effort transaction abort failed: %v", abortErr)
			}
			if errors.Is(ferr, ErrEagain) {
				continue
			}
			return zero, ferr
		}

		endErr := TransactionEnd(h, true)
		if endErr != nil {
			if errors.Is(endErr, ErrEagain) {
				continue
			}
			return zero, endErr
		}
		return result, nil
	}
}
