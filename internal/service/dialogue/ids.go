package dialogue

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/xid"
)

// TurnIDs hands out per-session turn IDs.
type TurnIDs struct {
	counter uint64
}

// Next returns "<sessionID>-turn-<n>" with n increasing from 1.
func (g *TurnIDs) Next(sessionID string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-turn-%d", sessionID, n)
}

// Count returns how many IDs have been issued.
func (g *TurnIDs) Count() uint64 {
	return atomic.LoadUint64(&g.counter)
}

// NewSessionID returns a sortable, globally unique session ID.
func NewSessionID() string {
	return xid.New().String()
}
