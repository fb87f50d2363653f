// Package tryon coordinates the lifecycle of one virtual try-on job: admit,
// stage inputs to the object store, pick a compute endpoint, await the
// result, fetch it, clean up.
package tryon

// Garment regions the inference pipeline accepts.
const (
	ClothUpper   = "upper"
	ClothLower   = "lower"
	ClothOverall = "overall"
)

// SeedRandom asks the worker to pick its own seed.
const SeedRandom = -1

// Request describes one try-on job. Each image arrives either as raw bytes
// or as a key of an object already present in the store, never both.
type Request struct {
	Person     []byte
	Garment    []byte
	PersonKey  string
	GarmentKey string
	ClothType  string
	Seed       int64
}

// Result is the terminal output of a successful job. Key is always set;
// Inline carries the artifact bytes only under inline delivery.
type Result struct {
	Inline []byte
	Key    string
}

func validClothType(ct string) bool {
	switch ct {
	case ClothUpper, ClothLower, ClothOverall:
		return true
	}
	return false
}
