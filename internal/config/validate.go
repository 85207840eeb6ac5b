package config

import (
	"fmt"
	"sort"
	"strings"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Recognizer.GRPC) == "" {
		return nil, fmt.Errorf("recognizer.grpc must not be empty")
	}
	if strings.TrimSpace(cfg.Recognizer.Language) == "" {
		return nil, fmt.Errorf("recognizer.language must not be empty")
	}
	if cfg.Recognizer.MaxAlternatives <= 0 {
		return nil, fmt.Errorf("recognizer.max_alternatives must be > 0")
	}
	if cfg.Recognizer.DialTimeoutMS <= 0 {
		return nil, fmt.Errorf("recognizer.dial_timeout_ms must be > 0")
	}
	if cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 192000 {
		return nil, fmt.Errorf("audio.sample_rate must be between 8000 and 192000")
	}
	if cfg.Session.MaxDurationMinutes <= 0 {
		return nil, fmt.Errorf("session.max_duration_minutes must be > 0")
	}
	if cfg.Session.StopGraceMS < 0 {
		return nil, fmt.Errorf("session.stop_grace_ms must be >= 0")
	}
	if cfg.Session.QualityIntervalMS <= 0 {
		return nil, fmt.Errorf("session.quality_interval_ms must be > 0")
	}
	if cfg.Session.WaveformFPS <= 0 || cfg.Session.WaveformFPS > 240 {
		return nil, fmt.Errorf("session.waveform_fps must be between 1 and 240")
	}
	if cfg.Recorder.ChunkMS <= 0 {
		return nil, fmt.Errorf("recorder.chunk_ms must be > 0")
	}
	if len(cfg.Recorder.Encodings) == 0 {
		warnings = append(warnings, Warning{Message: "recorder.encodings is empty; audio artifact disabled"})
	}
	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if cfg.Vocab.MaxPhrases <= 0 {
		return nil, fmt.Errorf("vocab.max_phrases must be > 0")
	}
	if cfg.Output.Clipboard && len(cfg.Output.ClipboardCmd.Argv) == 0 {
		return nil, fmt.Errorf("output.clipboard_cmd must not be empty when output.clipboard=true")
	}
	if !logLevels[cfg.Log.Level] {
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	if cfg.Session.StopGraceMS > 5000 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("session.stop_grace_ms=%d delays completion noticeably", cfg.Session.StopGraceMS)})
	}

	_, vocabWarnings, err := BuildSpeechPhrases(cfg)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, vocabWarnings...)

	return warnings, nil
}

// BuildSpeechPhrases merges enabled vocab sets into deterministic recognizer
// phrase hints. A phrase listed by several sets keeps the highest boost.
func BuildSpeechPhrases(cfg Config) ([]SpeechPhrase, []Warning, error) {
	enabledSets := cfg.Vocab.GlobalSets
	if len(enabledSets) == 0 {
		return nil, nil, nil
	}

	type candidate struct {
		boost float64
		from  string
	}

	warnings := make([]Warning, 0)
	selected := make(map[string]candidate)

	for _, name := range enabledSets {
		set, ok := cfg.Vocab.Sets[name]
		if !ok {
			return nil, nil, fmt.Errorf("vocab.global references unknown set %q", name)
		}
		for _, phrase := range set.Phrases {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" {
				continue
			}
			if existing, exists := selected[phrase]; exists {
				if set.Boost > existing.boost {
					warnings = append(warnings, Warning{Message: fmt.Sprintf("phrase %q present in %q and %q; using higher boost %.2f", phrase, existing.from, name, set.Boost)})
					selected[phrase] = candidate{boost: set.Boost, from: name}
				}
				continue
			}
			selected[phrase] = candidate{boost: set.Boost, from: name}
		}
	}

	if len(selected) > cfg.Vocab.MaxPhrases {
		return nil, nil, fmt.Errorf("vocabulary phrase count %d exceeds vocab.max_phrases=%d", len(selected), cfg.Vocab.MaxPhrases)
	}

	phrases := make([]SpeechPhrase, 0, len(selected))
	for phrase, c := range selected {
		phrases = append(phrases, SpeechPhrase{Phrase: phrase, Boost: float32(c.boost)})
	}

	sort.Slice(phrases, func(i, j int) bool {
		return phrases[i].Phrase < phrases[j].Phrase
	})

	return phrases, warnings, nil
}

// MedicalTerms lists every phrase of every configured set, enabled or not,
// for the medical-term index.
func MedicalTerms(cfg Config) []string {
	names := make([]string, 0, len(cfg.Vocab.Sets))
	for name := range cfg.Vocab.Sets {
		names = append(names, name)
	}
	sort.Strings(names)

	var terms []string
	for _, name := range names {
		for _, phrase := range cfg.Vocab.Sets[name].Phrases {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				terms = append(terms, phrase)
			}
		}
	}
	return terms
}
