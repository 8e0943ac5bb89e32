package pipeline

import "time"

// Status is the terminal result of one pipeline run.
type Status string

const (
	StatusCompleted       Status = "completed"
	StatusNoSpeech        Status = "no_speech"
	StatusEmptyTranscript Status = "empty_transcript"
	StatusFailed          Status = "failed"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageDetect     Stage = "detect"
	StageRecognize  Stage = "recognize"
	StageTranslate  Stage = "translate"
	StageSynthesize Stage = "synthesize"
)

// Outcome summarizes one pipeline run. Err is set only for failed runs.
type Outcome struct {
	Status Status
	// Stage is the last stage that ran.
	Stage Stage

	Transcript          string
	Text                string
	TranslationFallback bool
	TranslationErr      error

	Err       error
	Durations map[Stage]time.Duration
}

// Expected reports whether the run ended normally, including the empty
// results that stop the pipeline early.
func (o Outcome) Expected() bool {
	return o.Status != StatusFailed
}
