package state

import (
	"fmt"
	"strings"
)

// Block is a named block of the filter state.
// Block ordinal is also its bit in Mask.
type Block int

const (
	// P is position of the IMU in the world frame
	P Block = iota
	// V is velocity of the IMU in the world frame
	V
	// Q is attitude of the IMU in the world frame
	Q
	// Bw is gyroscope bias
	Bw
	// Ba is accelerometer bias
	Ba
	// L is visual scale
	L
	// Qwv is vision-world drift rotation
	Qwv
	// Pwv is vision-world drift translation
	Pwv
	// Qic is IMU-camera rotation
	Qic
	// Pic is IMU-camera translation
	Pic

	numBlocks
)

// ErrorDim is the length of the error-state vector.
const ErrorDim = 28

var blocks = [numBlocks]struct {
	name   string
	offset int
	width  int
}{
	P:   {"p", 0, 3},
	V:   {"v", 3, 3},
	Q:   {"q", 6, 3},
	Bw:  {"b_w", 9, 3},
	Ba:  {"b_a", 12, 3},
	L:   {"L", 15, 1},
	Qwv: {"q_wv", 16, 3},
	Pwv: {"p_wv", 19, 3},
	Qic: {"q_ic", 22, 3},
	Pic: {"p_ic", 25, 3},
}

// Blocks returns all state blocks in error-state order.
func Blocks() []Block {
	out := make([]Block, numBlocks)
	for i := range out {
		out[i] = Block(i)
	}

	return out
}

// Offset returns start index of the block in the error-state vector.
func (b Block) Offset() int {
	return blocks[b].offset
}

// Width returns number of error-state elements of the block.
func (b Block) Width() int {
	return blocks[b].width
}

// String implements the Stringer interface.
func (b Block) String() string {
	if b < 0 || b >= numBlocks {
		return fmt.Sprintf("Block(%d)", int(b))
	}
	return blocks[b].name
}

// ParseBlock returns the block with the given name, e.g. "p_ic".
// Names are matched case-insensitively.
func ParseBlock(name string) (Block, error) {
	for i, blk := range blocks {
		if strings.EqualFold(blk.name, name) {
			return Block(i), nil
		}
	}

	return 0, fmt.Errorf("unknown state block: %q", name)
}

// Mask marks state blocks which are held constant during a correction.
type Mask uint32

// MaskOf returns a mask with the given blocks set.
func MaskOf(bs ...Block) Mask {
	var m Mask
	for _, b := range bs {
		m |= 1 << uint(b)
	}

	return m
}

// Has returns true if block b is set in the mask.
func (m Mask) Has(b Block) bool {
	return m&(1<<uint(b)) != 0
}

// Blocks returns the blocks set in the mask in error-state order.
func (m Mask) Blocks() []Block {
	var out []Block
	for b := P; b < numBlocks; b++ {
		if m.Has(b) {
			out = append(out, b)
		}
	}

	return out
}
