// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package mmio

// Bit reports whether bit pos of value is set.
func Bit(value uint64, pos uint) bool {
	return value&(1<<pos) != 0
}

// SetBit returns value with bit pos set to on.
func SetBit(value uint64, pos uint, on bool) uint64 {
	if on {
		return value | 1<<pos
	}
	return value &^ (1 << pos)
}

// Field extracts bits lo..hi (inclusive) of value.
func Field(value uint64, lo, hi uint) uint64 {
	return (value >> lo) & fieldMask(lo, hi)
}

// SetField returns value with bits lo..hi (inclusive) replaced by field.
func SetField(value uint64, lo, hi uint, field uint64) uint64 {
	mask := fieldMask(lo, hi)
	return value&^(mask<<lo) | (field&mask)<<lo
}

func fieldMask(lo, hi uint) uint64 {
	n := hi - lo + 1
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<n - 1
}
