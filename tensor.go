package imbin

// Channels is the channel count of every sample.
const Channels = 3

// Tensor is a CHW float32 image. Its backing array is reused across samples.
type Tensor struct {
	C, H, W int
	Data    []float32
}

// Resize sets the shape and grows Data only when its capacity is too small.
// Previous contents are not preserved.
func (t *Tensor) Resize(c, h, w int) {
	n := c * h * w
	if cap(t.Data) < n {
		t.Data = make([]float32, n)
	}
	t.Data = t.Data[:n]
	t.C, t.H, t.W = c, h, w
}

// Channel returns the plane of channel c.
func (t *Tensor) Channel(c int) []float32 {
	plane := t.H * t.W
	return t.Data[c*plane : (c+1)*plane]
}

// At returns the value at channel c, row y, column x.
func (t *Tensor) At(c, y, x int) float32 {
	return t.Data[(c*t.H+y)*t.W+x]
}

// Sample is one labeled image.
type Sample struct {
	// Index is the sample index from the list file.
	Index uint32
	// Label is the label from the list file.
	Label float32
	// Data is the decoded image, channel c holding native channel 2-c.
	Data Tensor
}

// Pixels is a decoded image in interleaved 3-channel native order.
type Pixels struct {
	Width, Height int
	// Pix holds Width*Height*3 bytes, row-major.
	Pix []byte
}

// fill writes px into t reversing the channel order.
func (t *Tensor) fill(px Pixels) {
	t.Resize(Channels, px.Height, px.Width)
	plane := px.Height * px.Width
	for i := range plane {
		o := i * Channels
		t.Data[i] = float32(px.Pix[o+2])
		t.Data[plane+i] = float32(px.Pix[o+1])
		t.Data[2*plane+i] = float32(px.Pix[o])
	}
}
