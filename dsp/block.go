package dsp

// Block is a mutable run of samples exchanged between nodes and voices once
// per render tick. Resize keeps the backing array whenever it is large enough,
// so a block sized at construction never allocates on the render path.
type Block struct {
	data []float32
}

// NewBlock creates a zeroed block of the given length.
func NewBlock(length int) *Block {
	if length < 0 {
		length = 0
	}
	return &Block{data: make([]float32, length)}
}

// Len returns the current number of samples.
func (b *Block) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Samples exposes the sample slice. Callers may write into it.
func (b *Block) Samples() []float32 {
	if b == nil {
		return nil
	}
	return b.data
}

// Resize changes the length, growing the backing array only when needed.
// New samples are zeroed.
func (b *Block) Resize(n int) {
	if n < 0 {
		n = 0
	}
	if cap(b.data) >= n {
		old := len(b.data)
		b.data = b.data[:n]
		for i := old; i < n; i++ {
			b.data[i] = 0
		}
		return
	}
	grown := make([]float32, n)
	copy(grown, b.data)
	b.data = grown
}

// Zero clears all samples.
func (b *Block) Zero() {
	for i := range b.data {
		b.data[i] = 0
	}
}

// Fill sets every sample to v.
func (b *Block) Fill(v float32) {
	for i := range b.data {
		b.data[i] = v
	}
}

// Copy resizes b to match src and copies its samples.
func (b *Block) Copy(src *Block) {
	b.Resize(src.Len())
	copy(b.data, src.Samples())
}

// Add accumulates src into b sample by sample over the shorter length.
func (b *Block) Add(src []float32) {
	n := min(len(b.data), len(src))
	for i := 0; i < n; i++ {
		b.data[i] += src[i]
	}
}

// Mul multiplies b elementwise by src over the shorter length.
func (b *Block) Mul(src []float32) {
	n := min(len(b.data), len(src))
	for i := 0; i < n; i++ {
		b.data[i] *= src[i]
	}
}

// Scale multiplies every sample by g.
func (b *Block) Scale(g float32) {
	for i := range b.data {
		b.data[i] *= g
	}
}
