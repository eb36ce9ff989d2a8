package voice_activity

// Classifier is a voice activity backend. It classifies one window of
// exactly the size it was configured for.
type Classifier interface {
	Classify(window []int16) (bool, error)
}

// Resetter is implemented by backends that carry state across windows.
type Resetter interface {
	Reset()
}

type Interface interface {
	Classify(window []int16) (bool, error)
	WindowSize() int
	Reset()
}
