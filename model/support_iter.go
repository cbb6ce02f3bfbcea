package model

import (
	"github.com/pkg/errors"
)

// SupportIter is an iterator over every joint value of a list of nodes with
// finite integer supports.
type SupportIter struct {
	lo      []int
	hi      []int
	lastVal []int
}

// NewSupportIter iterates nodes whose k-th support is lo[k]..hi[k]
// (inclusive). The first value is lo.
func NewSupportIter(lo, hi []int) (*SupportIter, error) {
	if len(lo) < 1 {
		return nil, errors.Errorf("At least one node required for iteration")
	}
	if len(lo) != len(hi) {
		return nil, errors.Errorf("Bound count mismatch %d != %d", len(lo), len(hi))
	}
	for k := range lo {
		if hi[k] < lo[k] {
			return nil, errors.Errorf("Empty support %d..%d for node %d", lo[k], hi[k], k)
		}
	}

	si := &SupportIter{
		lo:      make([]int, len(lo)),
		hi:      make([]int, len(hi)),
		lastVal: make([]int, len(lo)),
	}
	copy(si.lo, lo)
	copy(si.hi, hi)
	copy(si.lastVal, lo)
	return si, nil
}

// Size is the number of joint values
func (si *SupportIter) Size() int {
	size := 1
	for k := range si.lo {
		size *= si.hi[k] - si.lo[k] + 1
	}
	return size
}

// Val populates curr with the current value
func (si *SupportIter) Val(curr []int) error {
	if len(curr) < len(si.lastVal) {
		return errors.Errorf("Dest buffer of size %d needs to be %d", len(curr), len(si.lastVal))
	}

	copy(curr, si.lastVal)

	return nil
}

// Next advances to the next value and returns True if there are still values to see
func (si *SupportIter) Next() bool {
	for i := len(si.lastVal) - 1; i >= 0; i-- {
		prop := si.lastVal[i] + 1

		if prop <= si.hi[i] {
			si.lastVal[i] = prop
			return true
		}

		si.lastVal[i] = si.lo[i] // Overflow: continue to next
	}

	// Every digit is back at lo: we wrapped around
	return false
}
