package qr

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"
)

const (
	MinComplexity  = 1
	MaxComplexity  = 10
	BaseIterations = 10000
	MaxIterations  = 5_000_000

	// HashLength is the number of hex characters kept from the identity digest.
	HashLength = 32

	extraWorkEvery = 10000
	imageSize      = 256
)

// sink keeps the busy loop's final state reachable.
var sink []byte

// Ticket identifies the seat a QR code is issued for.
type Ticket struct {
	OrderUUID string
	UserID    string
	EventID   int64
	SeatID    int64
}

// Identity is the string encoded into the QR code and hashed.
func (t Ticket) Identity() string {
	return fmt.Sprintf("TICKET:%s|USER:%s|EVENT:%d|SEAT:%d", t.OrderUUID, t.UserID, t.EventID, t.SeatID)
}

type Result struct {
	Hash       string
	PNG        []byte
	Iterations int
	Elapsed    time.Duration
}

type Simulator struct {
	// RenderImage toggles PNG rendering. The hash does not depend on it.
	RenderImage bool
}

func NewSimulator() *Simulator {
	return &Simulator{RenderImage: true}
}

// ClampComplexity forces complexity into [1,10].
func ClampComplexity(complexity int) int {
	if complexity < MinComplexity {
		return MinComplexity
	}
	if complexity > MaxComplexity {
		return MaxComplexity
	}
	return complexity
}

// Iterations returns min(10000 * 2^(c-1), 5,000,000) for the clamped complexity.
func Iterations(complexity int) int {
	c := ClampComplexity(complexity)
	n := BaseIterations << (c - 1)
	if n > MaxIterations {
		return MaxIterations
	}
	return n
}

// Hash returns the ticket hash: the first 32 hex characters of sha256(identity).
func Hash(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])[:HashLength]
}

// VerifyHash reports whether hash was issued for identity.
func VerifyHash(hash, identity string) bool {
	return hash == Hash(identity)
}

// Generate runs the CPU-bound workload for the ticket and returns its hash.
// The hash is independent of complexity; only the elapsed time scales with it.
func (s *Simulator) Generate(ticket Ticket, complexity int) (Result, error) {
	start := time.Now()
	identity := ticket.Identity()

	iterations := Iterations(complexity)
	burn([]byte(identity), iterations)

	result := Result{
		Hash:       Hash(identity),
		Iterations: iterations,
	}

	if s.RenderImage {
		png, err := qrcode.Encode(identity, qrcode.Highest, imageSize)
		if err != nil {
			return Result{}, fmt.Errorf("encode qr image: %w", err)
		}
		result.PNG = png
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

func burn(seed []byte, iterations int) {
	state := seed
	for i := 0; i < iterations; i++ {
		sum := sha256.Sum256(state)
		state = sum[:]
		if i%extraWorkEvery == 0 {
			wide := sha512.Sum512(state)
			sink = wide[:]
		}
	}
	sink = state
}
