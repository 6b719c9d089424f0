package certificates

import "math/rand/v2"

const (
	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength   = 9
)

// IDSource yields uniform integers in [0, n)
type IDSource interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// DefaultIDSource draws from the process-wide generator
var DefaultIDSource IDSource = globalSource{}

// GenerateCertificateID returns a 9 character identifier over A-Z0-9. It is
// not checked against issued identifiers.
func GenerateCertificateID(src IDSource) string {
	if src == nil {
		src = DefaultIDSource
	}
	b := make([]byte, idLength)
	for i := range b {
		b[i] = idAlphabet[src.IntN(len(idAlphabet))]
	}
	return string(b)
}
