// Package iox holds the one I/O cleanup helper the rest of the platform
// defers everywhere: closing a resource whose close error has nowhere
// useful to go.
package iox

import "io"

// DiscardClose closes c and discards the error. For defers on response
// bodies, zip readers, and adapters, where a failed close is
// unactionable by the time the defer runs:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }
