package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/zeebo/blake3"
)

// Phi is the golden ratio, used as the scaling constant throughout the
// store: resonance lives in [0, Phi), pattern radii scale by Phi, and
// partition capacities grow by fibonacci(n)*Phi.
const Phi = 1.618033988749895

// PatternSize is the number of points in a spatial pattern. The 32-byte
// digest splits evenly into 8 four-byte chunks.
const PatternSize = 8

// namespaceKey is the fixed 32-byte key for BLAKE3 keyed hashing.
// Domain separation: the same bytes fingerprinted outside this store
// produce a different digest. Changing it invalidates every stored
// fingerprint. ASCII encoding of the domain name, zero-padded, so the
// key is readable in hex dumps.
var namespaceKey = [32]byte{
	'q', 'u', 'a', 'r', 't', 'z', '.', 'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i',
	'n', 't', '.', 'v', '1', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Point is one component of a spatial pattern: a position on a spiral
// expressed as angle/radius plus a signal intensity.
type Point struct {
	Angle     float64
	Radius    float64
	Intensity float64
}

// Pattern is the fixed-size spatial pattern derived from content.
type Pattern [PatternSize]Point

// Encode derives the deterministic identity of a byte sequence: a
// hex-encoded keyed digest, a resonance frequency in [0, Phi), and a
// spatial pattern. Pure function; identical content always yields
// identical results, including for empty input.
func Encode(content []byte) (string, float64, Pattern) {
	digest := digest(content)

	// Leading 8 bytes → resonance bucket in [0, Phi).
	lead := binary.BigEndian.Uint64(digest[:8])
	resonance := float64(lead%1000) / 1000 * Phi

	var pattern Pattern
	for i := 0; i < PatternSize; i++ {
		chunk := binary.BigEndian.Uint32(digest[i*4 : i*4+4])
		v := float64(chunk) / float64(math.MaxUint32)
		pattern[i] = Point{
			Angle:     v * 2 * math.Pi,
			Radius:    v * Phi,
			Intensity: v,
		}
	}

	return hex.EncodeToString(digest[:]), resonance, pattern
}

// Sum returns the raw keyed digest of content. Used internally and by
// the clusterer for membership signatures.
func Sum(content []byte) [32]byte {
	return digest(content)
}

func digest(content []byte) [32]byte {
	hasher, err := blake3.NewKeyed(namespaceKey[:])
	if err != nil {
		// NewKeyed only fails on wrong key length, which the fixed-size
		// array rules out.
		panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(content)
	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}
