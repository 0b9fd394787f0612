package build

import (
	"github.com/karvela/crampack/internal/codec"
	"github.com/karvela/crampack/internal/rans"
)

// BestMethod compresses data with gzip and both rANS orders and picks the
// method whose output is smallest. When nothing beats the raw size the
// stream stays raw. Ties keep the earlier candidate.
func BestMethod(cache *codec.Cache, data []byte, gzipLevel int) (codec.Method, int) {
	candidates := []struct {
		method codec.Method
		arg    int
	}{
		{codec.Gzip, gzipLevel},
		{codec.RANS, int(rans.Order0)},
		{codec.RANS, int(rans.Order1)},
	}

	best, bestArg := codec.Raw, codec.NoArg
	bestSize := len(data)
	for _, c := range candidates {
		comp, err := cache.Get(c.method, c.arg)
		if err != nil {
			continue
		}
		out, err := comp.Compress(data)
		if err != nil {
			continue
		}
		if len(out) < bestSize {
			best, bestArg = c.method, c.arg
			bestSize = len(out)
		}
	}
	return best, bestArg
}
