package utils

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	XMin, YMin, XMax, YMax int
}

// Area returns the box area in pixels; degenerate boxes have area 0.
func (b Box) Area() int {
	w := b.XMax - b.XMin
	h := b.YMax - b.YMin
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IntersectionOverUnion returns the IoU of two boxes in [0,1]. It is used
// both to group near-identical detections of the same physical face within
// one image and to match engine recognition results back to local face rows.
func IntersectionOverUnion(a, b Box) float64 {
	ixMin := max(a.XMin, b.XMin)
	iyMin := max(a.YMin, b.YMin)
	ixMax := min(a.XMax, b.XMax)
	iyMax := min(a.YMax, b.YMax)

	iw := ixMax - ixMin
	ih := iyMax - iyMin
	if iw <= 0 || ih <= 0 {
		return 0
	}

	intersection := iw * ih
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
