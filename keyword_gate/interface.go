package keyword_gate

// Classifier is a keyword spotting backend. It classifies one window of
// exactly the size it was configured for.
type Classifier interface {
	Classify(window []int16) (bool, error)
}

// Resetter is implemented by backends that carry state across windows.
type Resetter interface {
	Reset()
}

type Interface interface {
	Detect(window []int16) (Detection, error)
	WindowSize() int
	Rearm()
}

// Detection is the gate's verdict on one keyword window.
type Detection struct {
	Hit bool
	// Rising is set on the first positive after a negative classification
	// (or after Rearm).
	Rising bool
}
