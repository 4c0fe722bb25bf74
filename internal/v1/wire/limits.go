package wire

// Protocol limits. These bound every inbound frame before the room sees it.
const (
	MaxMessageBytes     = 65536
	MaxBoardIDChars     = 128
	MaxUserIDChars      = 128
	MaxClientOpIDChars  = 128
	MaxTokenChars       = 4096
	MaxDisplayNameChars = 64
	MaxColorChars       = 32
	MaxSelectionIDs     = 200
	MaxTextChars        = 10000
	MaxStrokePoints     = 50000

	MinStrokeWidth = 0
	MaxStrokeWidth = 200
	MinFontSize    = 1
	MaxFontSize    = 512
	MinZoom        = 0.01
	MaxZoom        = 100
)
