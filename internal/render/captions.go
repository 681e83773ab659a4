package render

import (
	"fmt"
	"math"
	"os"
	"strings"
)

// ---------------------------------------------------------------------------
// Lower-third caption card
//
// A semi-opaque box spanning 80% of the frame width sits a fixed distance
// above the bottom edge. The caption is burned in from an ASS file, bold white
// with a thin outline, centered inside the box.
// ---------------------------------------------------------------------------

const (
	captionFontName = "Noto Sans"

	// ASS colors are &HAABBGGRR
	assColorWhite = "&H00FFFFFF"
	assColorBlack = "&H00000000"

	captionBoxColor   = "black@0.55"
	captionWidthRatio = 0.80
	captionFontRatio  = 0.035 // of frame height
	captionBottomGap  = 0.15  // of frame height, box bottom to frame bottom
)

type captionLayout struct {
	FontSize int
	BoxX     int
	BoxY     int
	BoxW     int
	BoxH     int
}

func layoutCaption(frame Frame) captionLayout {
	font := int(math.Round(float64(frame.Height) * captionFontRatio))
	boxW := int(float64(frame.Width) * captionWidthRatio)
	boxH := font * 3
	gap := int(float64(frame.Height) * captionBottomGap)
	return captionLayout{
		FontSize: font,
		BoxX:     (frame.Width - boxW) / 2,
		BoxY:     frame.Height - gap - boxH,
		BoxW:     boxW,
		BoxH:     boxH,
	}
}

// drawboxFilter is the background card.
func (l captionLayout) drawboxFilter() string {
	return fmt.Sprintf("drawbox=x=%d:y=%d:w=%d:h=%d:color=%s:t=fill",
		l.BoxX, l.BoxY, l.BoxW, l.BoxH, captionBoxColor)
}

// writeCaptionASS writes a single dialogue line spanning the whole clip.
func writeCaptionASS(path string, frame Frame, text string, duration float64) error {
	l := layoutCaption(frame)
	margin := l.BoxX + l.FontSize/2

	var sb strings.Builder

	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	sb.WriteString(fmt.Sprintf("PlayResX: %d\n", frame.Width))
	sb.WriteString(fmt.Sprintf("PlayResY: %d\n", frame.Height))
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n")
	sb.WriteString("\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	// Alignment 5 is middle-center; \pos below pins it to the card center.
	sb.WriteString(fmt.Sprintf(
		"Style: Caption,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,0,0,1,2,0,5,%d,%d,0,1\n",
		captionFontName, l.FontSize,
		assColorWhite, assColorWhite, assColorBlack, assColorBlack,
		margin, margin,
	))
	sb.WriteString("\n")

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	sb.WriteString(fmt.Sprintf(
		"Dialogue: 0,%s,%s,Caption,,0,0,0,,{\\pos(%d,%d)}%s\n",
		formatASSTime(0), formatASSTime(duration),
		frame.Width/2, l.BoxY+l.BoxH/2,
		escapeASSText(text),
	))

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write caption file: %w", err)
	}
	return nil
}

// escapeASSText keeps user text from being read as override tags.
func escapeASSText(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\\", "/")
	text = strings.ReplaceAll(text, "{", "(")
	text = strings.ReplaceAll(text, "}", ")")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\n", "\\N")
}

// formatASSTime converts seconds to H:MM:SS.CC
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	cs := int(math.Round(seconds * 100))
	return fmt.Sprintf("%d:%02d:%02d.%02d", cs/360000, (cs/6000)%60, (cs/100)%60, cs%100)
}

// escapeFilterPath escapes a path for use inside an ffmpeg filter argument.
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}
