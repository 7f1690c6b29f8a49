package models

import "gonum.org/v1/gonum/mat"

const (
	DefaultMass    = 1.0
	DefaultLength  = 1.0
	DefaultGravity = 9.81
)

// actuated returns the n×m input matrix with an identity block on the
// rows starting at offset.
func actuated(n, m, offset int) *mat.Dense {
	g := mat.NewDense(n, m, nil)
	for j := 0; j < m; j++ {
		g.Set(offset+j, j, 1)
	}
	return g
}
