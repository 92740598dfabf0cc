package engine

// Fixed rule constants. They are deliberately not configurable: every
// observer folds the same log, so the rules must be identical everywhere.
const (
	MinPlayers = 2
	MaxPlayers = 6

	NumRounds = 3
	MaxOxygen = 25

	DeckSize      = 32
	LevelSize     = 8 // tokens per level band
	NumLevels     = DeckSize / LevelSize
	DropSpaceSize = 3 // max tokens per appended drop space

	// Submarine is the off-path position above index 0.
	Submarine = -1
)

// Color is a player's meeple color.
type Color string

const (
	ColorRed    Color = "red"
	ColorOrange Color = "orange"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorPurple Color = "purple"
)

// Palette is the ordered set of colors a game may assign.
var Palette = [MaxPlayers]Color{ColorRed, ColorOrange, ColorYellow, ColorGreen, ColorBlue, ColorPurple}

// Valid reports whether c belongs to the palette.
func (c Color) Valid() bool {
	for _, p := range Palette {
		if p == c {
			return true
		}
	}
	return false
}

// AllLoot is the closed deck: two tokens of each value 0..15, levels in
// bands of eight.
var AllLoot = func() [DeckSize]Loot {
	var deck [DeckSize]Loot
	for i := range deck {
		deck[i] = Loot{ID: i, Level: i/LevelSize + 1, Value: i / 2}
	}
	return deck
}()
