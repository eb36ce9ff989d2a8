package audio_source

// Interface delivers fixed-size blocks of mono 16-bit PCM. NextBlock blocks
// until a block is available.
type Interface interface {
	NextBlock() ([]int16, error)
	Close() error
}
