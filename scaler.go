package merger

// frameScaler resizes I420 frames to a fixed target size using bilinear
// interpolation. Output buffers are pre-allocated and reused, so a returned
// frame is only valid until the next Scale call.
type frameScaler struct {
	dstWidth, dstHeight int

	outY, outU, outV []byte
}

func newFrameScaler(dstWidth, dstHeight int) *frameScaler {
	ySize := dstWidth * dstHeight
	uvSize := (dstWidth / 2) * (dstHeight / 2)

	return &frameScaler{
		dstWidth:  dstWidth,
		dstHeight: dstHeight,
		outY:      make([]byte, ySize),
		outU:      make([]byte, uvSize),
		outV:      make([]byte, uvSize),
	}
}

// Scale resizes frame to the target dimensions. When the frame already
// matches, it is returned untouched.
func (s *frameScaler) Scale(frame *VideoFrame) *VideoFrame {
	if frame.Width == s.dstWidth && frame.Height == s.dstHeight {
		return frame
	}

	scalePlane(frame.Data[0], frame.Stride[0], frame.Width, frame.Height,
		s.outY, s.dstWidth, s.dstWidth, s.dstHeight)
	scalePlane(frame.Data[1], frame.Stride[1], frame.Width/2, frame.Height/2,
		s.outU, s.dstWidth/2, s.dstWidth/2, s.dstHeight/2)
	scalePlane(frame.Data[2], frame.Stride[2], frame.Width/2, frame.Height/2,
		s.outV, s.dstWidth/2, s.dstWidth/2, s.dstHeight/2)

	return &VideoFrame{
		Data:      [][]byte{s.outY, s.outU, s.outV},
		Stride:    []int{s.dstWidth, s.dstWidth / 2, s.dstWidth / 2},
		Width:     s.dstWidth,
		Height:    s.dstHeight,
		Format:    PixelFormatI420,
		Timestamp: frame.Timestamp,
		Duration:  frame.Duration,
	}
}

// fitBox returns the largest even-dimensioned box of srcW:srcH aspect that
// fits inside maxW x maxH, centered, for letterboxed drawing.
func fitBox(srcW, srcH, maxW, maxH int) (x, y, w, h int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0, maxW, maxH
	}

	if srcW*maxH > srcH*maxW {
		w = maxW
		h = maxW * srcH / srcW
	} else {
		h = maxH
		w = maxH * srcW / srcH
	}

	// Even dimensions and offsets keep chroma planes aligned.
	w &^= 1
	h &^= 1
	if w <= 0 {
		w = 2
	}
	if h <= 0 {
		h = 2
	}
	x = ((maxW - w) / 2) &^ 1
	y = ((maxH - h) / 2) &^ 1
	return x, y, w, h
}

// scalePlane scales a single plane using bilinear interpolation with 16.16
// fixed-point coordinates.
func scalePlane(src []byte, srcStride, srcW, srcH int, dst []byte, dstStride, dstW, dstH int) {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := 0; y < dstH; y++ {
		srcYFP := y * yRatio
		y0 := srcYFP >> 16
		yFrac := srcYFP & 0xFFFF

		y1 := y0 + 1
		if y1 >= srcH {
			y1 = y0
		}

		for x := 0; x < dstW; x++ {
			srcXFP := x * xRatio
			x0 := srcXFP >> 16
			xFrac := srcXFP & 0xFFFF

			x1 := x0 + 1
			if x1 >= srcW {
				x1 = x0
			}

			p00 := int(src[y0*srcStride+x0])
			p10 := int(src[y0*srcStride+x1])
			p01 := int(src[y1*srcStride+x0])
			p11 := int(src[y1*srcStride+x1])

			top := (p00*(0x10000-xFrac) + p10*xFrac) >> 16
			bottom := (p01*(0x10000-xFrac) + p11*xFrac) >> 16
			dst[y*dstStride+x] = byte((top*(0x10000-yFrac) + bottom*yFrac) >> 16)
		}
	}
}
