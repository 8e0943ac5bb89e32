package pipeline

// Config is the immutable per-session pipeline configuration. A snapshot is
// captured when a recording ends; later updates only affect the next session.
type Config struct {
	STTModelPath       string
	Language           string
	VADEnabled         bool
	TranslationEnabled bool
	TargetLanguage     string
	TTSVoiceID         int
	TTSSpeed           float64
}

// Job is one finished recording handed to the orchestrator.
type Job struct {
	Session    string
	Generation uint64
	Samples    []float32
	SampleRate int
	Truncated  bool
	Config     Config
}
