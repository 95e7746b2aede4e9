package crypto

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"

	pool "github.com/libp2p/go-buffer-pool"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

/*
	A Hasher maps an arbitrary byte string to a fixed 32 byte digest. The tree never depends on which
	function is used, only that the same one is used to build and to verify. Hashers are registered by
	name so the choice can live in configuration, and the store persists the name it was first opened
	with to refuse a different one later.
*/

const (
	Blake3Name    = "blake3"
	SHA256Name    = "sha256"
	Blake2bName   = "blake2b"
	SHA3Name      = "sha3"
	Keccak256Name = "keccak256"

	DefaultHasherName = Blake3Name
)

// HasherI is the pluggable hash primitive consumed by the tree
type HasherI interface {
	// Name() returns the registered name of the hash function
	Name() string
	// Sum() hashes the concatenation of all parts, the parts are never mutated
	Sum(parts ...[]byte) Digest
}

var (
	hashersMu sync.RWMutex
	hashers   = make(map[string]func() HasherI)
)

func init() {
	RegisterHasher(Blake3Name, func() HasherI { return sumHasher{Blake3Name, blake3.Sum256} })
	RegisterHasher(SHA256Name, func() HasherI { return sumHasher{SHA256Name, sha256.Sum256} })
	RegisterHasher(Blake2bName, func() HasherI { return sumHasher{Blake2bName, blake2b.Sum256} })
	RegisterHasher(SHA3Name, func() HasherI { return sumHasher{SHA3Name, sha3.Sum256} })
	RegisterHasher(Keccak256Name, func() HasherI { return sumHasher{Keccak256Name, keccak256} })
}

// RegisterHasher() makes a hash function available by name, registering the same name twice panics
func RegisterHasher(name string, f func() HasherI) {
	hashersMu.Lock()
	defer hashersMu.Unlock()
	if _, ok := hashers[name]; ok {
		panic(fmt.Sprintf("RegisterHasher(%s) is already registered", name))
	}
	hashers[name] = f
}

// NewHasher() returns the hasher registered under name, an empty name selects the default
func NewHasher(name string) (HasherI, error) {
	if name == "" {
		name = DefaultHasherName
	}
	hashersMu.RLock()
	f, ok := hashers[name]
	hashersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("hasher %q is unknown", name)
	}
	return f(), nil
}

// DefaultHasher() returns the blake3 hasher
func DefaultHasher() HasherI {
	h, _ := NewHasher(DefaultHasherName)
	return h
}

// HasherNames() lists every registered hasher in alphabetical order
func HasherNames() (names []string) {
	hashersMu.RLock()
	defer hashersMu.RUnlock()
	for name := range hashers {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// sumHasher adapts any one-shot 256-bit sum function to HasherI
type sumHasher struct {
	name string
	sum  func([]byte) [32]byte
}

func (s sumHasher) Name() string { return s.name }

// Sum() joins the parts in a pooled buffer so hot paths don't allocate a fresh preimage per node
func (s sumHasher) Sum(parts ...[]byte) Digest {
	if len(parts) == 1 {
		return s.sum(parts[0])
	}
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	buf := pool.Get(size)
	defer pool.Put(buf)
	offset := 0
	for _, p := range parts {
		offset += copy(buf[offset:], p)
	}
	return s.sum(buf)
}

func keccak256(bz []byte) (out [32]byte) {
	h := sha3.NewLegacyKeccak256()
	h.Write(bz)
	h.Sum(out[:0])
	return
}
