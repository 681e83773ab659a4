package render

import (
	"fmt"
	"math"

	"github.com/bobarin/reelforge/internal/models"
)

// Frame is an output resolution.
type Frame struct {
	Width  int
	Height int
}

func (f Frame) String() string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

var (
	FramePortrait  = Frame{Width: 1080, Height: 1920}
	FrameLandscape = Frame{Width: 1920, Height: 1080}
)

// FrameFor maps an aspect ratio to its target frame. Unknown ratios get portrait.
func FrameFor(a models.AspectRatio) Frame {
	if a == models.AspectLandscape {
		return FrameLandscape
	}
	return FramePortrait
}

// Fit is the scale-then-center-crop that maps a source onto a frame.
type Fit struct {
	ScaleWidth  int
	ScaleHeight int
	CropX       int
	CropY       int
	Frame       Frame
}

// FitToFrame scales the source so its height matches the frame; if the width
// then falls short it scales by width instead. The scaled size is rounded up
// to even numbers so the center crop always has enough pixels.
func FitToFrame(srcWidth, srcHeight int, frame Frame) Fit {
	if srcWidth <= 0 || srcHeight <= 0 {
		return Fit{ScaleWidth: frame.Width, ScaleHeight: frame.Height, Frame: frame}
	}

	w := evenCeil(float64(srcWidth) * float64(frame.Height) / float64(srcHeight))
	h := frame.Height
	if w < frame.Width {
		w = frame.Width
		h = evenCeil(float64(srcHeight) * float64(frame.Width) / float64(srcWidth))
	}
	if h < frame.Height {
		h = frame.Height
	}

	return Fit{
		ScaleWidth:  w,
		ScaleHeight: h,
		CropX:       (w - frame.Width) / 2,
		CropY:       (h - frame.Height) / 2,
		Frame:       frame,
	}
}

// Filter renders the fit as an ffmpeg filter chain.
func (f Fit) Filter() string {
	return fmt.Sprintf("scale=%d:%d:flags=lanczos,crop=%d:%d:%d:%d,setsar=1",
		f.ScaleWidth, f.ScaleHeight,
		f.Frame.Width, f.Frame.Height, f.CropX, f.CropY)
}

func evenCeil(v float64) int {
	n := int(math.Ceil(v - 1e-9))
	if n%2 != 0 {
		n++
	}
	return n
}
