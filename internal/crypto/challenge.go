package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"
	"time"

	"golang.org/x/crypto/blake2b"
)

// DefaultDifficulty is the number of leading zero bits a solution digest
// must carry. The work is cheap for one honest join and expensive at the
// rate a sybil operator would need.
const DefaultDifficulty = 16

// DefaultChallengeTTL bounds how long an issued challenge stays solvable.
const DefaultChallengeTTL = 2 * time.Minute

// Challenge is a proof-of-work puzzle issued during swarm admission.
type Challenge struct {
	Nonce      string    `json:"nonce"`
	Difficulty int       `json:"difficulty"`
	IssuedAt   time.Time `json:"issued_at"`
}

// NewChallenge issues a challenge with a random nonce.
func NewChallenge(difficulty int) (*Challenge, error) {
	if difficulty <= 0 {
		difficulty = DefaultDifficulty
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return &Challenge{
		Nonce:      hex.EncodeToString(nonce),
		Difficulty: difficulty,
		IssuedAt:   time.Now(),
	}, nil
}

// Expired reports whether the challenge has outlived its ttl.
func (c *Challenge) Expired(ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return time.Since(c.IssuedAt) > ttl
}

// Verify reports whether solution satisfies the challenge.
func (c *Challenge) Verify(solution uint64) bool {
	return leadingZeroBits(digest(c.Nonce, solution)) >= c.Difficulty
}

// Solve searches for a satisfying solution, bounded by maxIterations.
func (c *Challenge) Solve(maxIterations uint64) (uint64, error) {
	for solution := uint64(0); solution < maxIterations; solution++ {
		if c.Verify(solution) {
			return solution, nil
		}
	}
	return 0, fmt.Errorf("no solution within %d iterations at difficulty %d", maxIterations, c.Difficulty)
}

func digest(nonce string, solution uint64) [blake2b.Size256]byte {
	buf := make([]byte, 0, len(nonce)+8)
	buf = append(buf, nonce...)
	buf = binary.LittleEndian.AppendUint64(buf, solution)
	return blake2b.Sum256(buf)
}

func leadingZeroBits(sum [blake2b.Size256]byte) int {
	zeros := 0
	for _, b := range sum {
		if b == 0 {
			zeros += 8
			continue
		}
		zeros += bits.LeadingZeros8(b)
		break
	}
	return zeros
}
