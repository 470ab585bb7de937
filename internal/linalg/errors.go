package linalg

import "errors"

var (
	ErrDimensionMismatch   = errors.New("linalg: dimension mismatch")
	ErrNonSquareMatrix     = errors.New("linalg: matrix is not square")
	ErrSingularMatrix      = errors.New("linalg: matrix is singular")
	ErrEmptyMatrix         = errors.New("linalg: matrix is empty")
	ErrDegenerateNormalize = errors.New("linalg: cannot normalize a zero-length vector")
)

// normEpsilon is the smallest norm Normalize accepts.
const normEpsilon = 1e-12
