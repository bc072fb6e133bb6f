package game

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
)

// Source draws integers uniformly from [0, n).
type Source interface {
	Intn(n int) int
}

// CryptoSource draws from crypto/rand. It is the default for live tables.
type CryptoSource struct{}

func (CryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("game: Intn called with non-positive n")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("game: crypto/rand failed: %v", err))
	}
	return int(v.Int64())
}

// SeededSource derives draws from HMAC-SHA256(serverSeed, "clientSeed:nonce").
// The same seeds replay the same sequence of pockets.
type SeededSource struct {
	serverSeed string
	clientSeed string
	commitment string
	mu         sync.Mutex
	nonce      int
}

func NewSeededSource(serverSeed, clientSeed string) *SeededSource {
	return &SeededSource{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		commitment: HashCommitment(serverSeed),
	}
}

func (s *SeededSource) Intn(n int) int {
	s.mu.Lock()
	s.nonce++
	nonce := s.nonce
	s.mu.Unlock()
	return hashToInt(s.serverSeed, s.clientSeed, nonce, n)
}

// Nonce returns the number of draws taken so far.
func (s *SeededSource) Nonce() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce
}

// Fairness is what a player may see before the server seed is revealed.
func (s *SeededSource) Fairness() *Fairness {
	return &Fairness{
		ServerSeedHash: s.commitment,
		ClientSeed:     s.clientSeed,
		Nonce:          s.Nonce(),
	}
}

// ServerSeed reveals the secret half of the pair. Once revealed, every past
// draw can be checked with PocketFor.
func (s *SeededSource) ServerSeed() string {
	return s.serverSeed
}

// PocketFor returns the pocket a SeededSource yields for the given nonce.
func PocketFor(serverSeed, clientSeed string, nonce int) int {
	return hashToInt(serverSeed, clientSeed, nonce, POCKET_COUNT)
}

// hashToInt maps the first 64 bits of the HMAC to a float in [0,1) and
// scales it to [0, n).
func hashToInt(serverSeed, clientSeed string, nonce, n int) int {
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(fmt.Sprintf("%s:%d", clientSeed, nonce)))
	sum := h.Sum(nil)

	const MAX_VALUE_F64 = 18446744073709551616.0
	f := float64(binary.BigEndian.Uint64(sum[:8])) / MAX_VALUE_F64
	v := int(f * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// GenerateSeed returns 32 random bytes, hex encoded.
func GenerateSeed() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate seed: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashCommitment is the hex SHA-256 of seed, published before any draw.
func HashCommitment(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}
