package ocr

import (
	"fmt"

	"gocv.io/x/gocv"
)

// DefaultThreshold separates printed text from background on receipt photos
const DefaultThreshold = 180

// Binarize converts a PNG to grayscale and applies a fixed binary threshold.
// Pixels brighter than threshold become white, everything else black.
func Binarize(pngData []byte, threshold float32) ([]byte, error) {
	img, err := gocv.IMDecode(pngData, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("decoding image: empty result")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, threshold, 255, gocv.ThresholdBinary)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, binary)
	if err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close frees
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
