package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/karvela/crampack/internal/rans"
)

// NoArg is the sentinel argument for methods that take no parameter.
// Passing anything else for such a method is a validation error.
const NoArg = -1

type cacheKey struct {
	method Method
	arg    int
}

// Cache hands out compressor instances keyed on (method, argument), so the
// large rANS tables are allocated once per session instead of once per block.
// A Cache lives for one read or write session and is safe for concurrent use;
// the instances it returns are handed out under the same lock, so workers
// must not share a returned compressor across goroutines without their own
// coordination.
type Cache struct {
	mu          sync.Mutex
	compressors map[cacheKey]Compressor
}

// NewCache returns an empty compressor cache.
func NewCache() *Cache {
	return &Cache{compressors: make(map[cacheKey]Compressor)}
}

// Get returns the cached compressor for (method, arg), creating it on first
// use. Raw, bzip2 and lzma take no argument and must be requested with NoArg.
// For gzip the argument is the compression level, for rANS the order; NoArg
// selects the default (gzip default level, rANS order-0).
func (c *Cache) Get(method Method, arg int) (Compressor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{method: method, arg: arg}
	if comp, ok := c.compressors[key]; ok {
		return comp, nil
	}

	comp, err := newCompressor(method, arg)
	if err != nil {
		return nil, err
	}
	c.compressors[key] = comp
	return comp, nil
}

func newCompressor(method Method, arg int) (Compressor, error) {
	switch method {
	case Raw:
		if arg != NoArg {
			return nil, fmt.Errorf("raw compressor takes no argument, got %d", arg)
		}
		return rawCompressor{}, nil
	case Gzip:
		level := gzip.DefaultCompression
		if arg != NoArg {
			if arg < gzip.HuffmanOnly || arg > gzip.BestCompression {
				return nil, fmt.Errorf("invalid gzip compression level: %d", arg)
			}
			level = arg
		}
		return gzipCompressor{level: level}, nil
	case BZip2:
		if arg != NoArg {
			return nil, fmt.Errorf("bzip2 compressor takes no argument, got %d", arg)
		}
		return bzip2Compressor{}, nil
	case LZMA:
		if arg != NoArg {
			return nil, fmt.Errorf("lzma compressor takes no argument, got %d", arg)
		}
		return lzmaCompressor{}, nil
	case RANS:
		order := rans.Order0
		switch arg {
		case NoArg, int(rans.Order0):
		case int(rans.Order1):
			order = rans.Order1
		default:
			return nil, fmt.Errorf("invalid rANS order: %d", arg)
		}
		return newRANSCompressor(order), nil
	default:
		return nil, fmt.Errorf("unknown compression method: %d", method)
	}
}
