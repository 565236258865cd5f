// pkg/utils/id_generator.go
package utils

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Order id prefixes
const (
	PrefixRechargeOrder = "RO"
	PrefixVIPOrder      = "VIP"
)

// IDGenerator produces time-sortable order ids.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// OrderID returns prefix followed by a ULID, e.g. RO01HV3K8Z6N0Q2T4W9XJ5M7C1BD.
func (g *IDGenerator) OrderID(prefix string, at time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return prefix + ulid.MustNew(ulid.Timestamp(at), g.entropy).String()
}

// EventID identifies one outbound notification.
func EventID() string {
	return uuid.NewString()
}
