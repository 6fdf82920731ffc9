package finalize

// Rect is a rectangle in PDF user space: points, origin at the bottom-left
// corner of the page.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// PDFRect converts a normalized field rectangle (top-left origin, values in
// [0,1] of the page dimensions) to PDF user space. The vertical axis flips:
// screen y grows downward, PDF y grows upward, so the rectangle's bottom
// edge lands at pageH - y*pageH - h*pageH.
func PDFRect(x, y, w, h, pageW, pageH float64) Rect {
	return Rect{
		X: x * pageW,
		Y: pageH - y*pageH - h*pageH,
		W: w * pageW,
		H: h * pageH,
	}
}
