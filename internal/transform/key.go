package transform

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/ironsheep/imgresize/internal/cache"
	"github.com/ironsheep/imgresize/internal/params"
	"github.com/ironsheep/imgresize/internal/source"
)

// DeriveKey returns the cache key for identity transformed by d. Equal
// descriptors give equal keys regardless of how their query was ordered, and
// identities that clean to the same path share a key.
func DeriveKey(identity string, d params.Descriptor) cache.Key {
	if name, ok := source.Clean(identity); ok {
		identity = name
	}
	h := blake3.New()
	h.WriteString(identity)
	h.WriteString("\x00")
	h.WriteString(d.Canonical())
	return cache.Key(hex.EncodeToString(h.Sum(nil)))
}
