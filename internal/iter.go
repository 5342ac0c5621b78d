// Package internal holds helpers shared by the ape packages.
package internal

import (
	"iter"
)

// IterSeq2Concat chains key/value sequences, such as the define tables of
// the cpu and the emulator, into one sequence. Iteration stops as soon as
// the consumer does.
func IterSeq2Concat[K any, V any](seqs ...iter.Seq2[K, V]) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, seq := range seqs {
			for key, value := range seq {
				if !yield(key, value) {
					return
				}
			}
		}
	}
}
