package builder

//go:generate go tool enumer -type=Mode -transform=lower -trimprefix=Mode

// Mode selects how an optional toolchain feature is resolved: probed at run
// time (auto), or forced on/off without probing.
type Mode int

const (
	ModeAuto Mode = iota
	ModeOn
	ModeOff
)
