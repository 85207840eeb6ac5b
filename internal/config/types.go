// Package config resolves, parses, validates, and defaults scribe configuration.
package config

// Config is the fully materialized runtime configuration used by scribe.
type Config struct {
	Recognizer RecognizerConfig
	Audio      AudioConfig
	Session    SessionConfig
	Recorder   RecorderConfig
	Vocab      VocabConfig
	Indicator  IndicatorConfig
	Output     OutputConfig
	Log        LogConfig
}

// RecognizerConfig selects the streaming recognizer and its request hints.
type RecognizerConfig struct {
	GRPC            string
	Language        string
	MaxAlternatives int
	DialTimeoutMS   int
}

// AudioConfig controls input-source selection and capture processing.
type AudioConfig struct {
	Input            string
	Fallback         string
	SampleRate       int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// SessionConfig controls recording limits and live-analysis cadence.
type SessionConfig struct {
	MaxDurationMinutes int
	StopGraceMS        int
	QualityIntervalMS  int
	WaveformFPS        int
}

// RecorderConfig controls audio artifact encoding.
type RecorderConfig struct {
	Encodings []string
	ChunkMS   int
}

// VocabConfig controls enabled phrase sets and dedupe limits.
type VocabConfig struct {
	GlobalSets []string
	Sets       map[string]VocabSet
	MaxPhrases int
}

// VocabSet is one named phrase group with a shared boost value.
type VocabSet struct {
	Name    string
	Boost   float64
	Phrases []string
}

// IndicatorConfig controls desktop notifications and audio cues.
type IndicatorConfig struct {
	Enable         bool
	SoundEnable    bool
	DesktopAppName string
	ErrorTimeoutMS int
}

// OutputConfig controls what happens with a completed transcript.
type OutputConfig struct {
	Clipboard    bool
	ClipboardCmd CommandConfig
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// LogConfig controls the runtime log level.
type LogConfig struct {
	Level string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// SpeechPhrase is the normalized phrase payload sent to recognizers.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}
