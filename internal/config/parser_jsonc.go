package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Recognizer *jsoncRecognizer `json:"recognizer"`
	Audio      *jsoncAudio      `json:"audio"`
	Session    *jsoncSession    `json:"session"`
	Recorder   *jsoncRecorder   `json:"recorder"`
	Vocab      *jsoncVocab      `json:"vocab"`
	Indicator  *jsoncIndicator  `json:"indicator"`
	Output     *jsoncOutput     `json:"output"`
	Log        *jsoncLog        `json:"log"`
}

type jsoncRecognizer struct {
	GRPC            *string `json:"grpc"`
	Language        *string `json:"language"`
	MaxAlternatives *int    `json:"max_alternatives"`
	DialTimeoutMS   *int    `json:"dial_timeout_ms"`
}

type jsoncAudio struct {
	Input            *string `json:"input"`
	Fallback         *string `json:"fallback"`
	SampleRate       *int    `json:"sample_rate"`
	EchoCancellation *bool   `json:"echo_cancellation"`
	NoiseSuppression *bool   `json:"noise_suppression"`
	AutoGainControl  *bool   `json:"auto_gain_control"`
}

type jsoncSession struct {
	MaxDurationMinutes *int `json:"max_duration_minutes"`
	StopGraceMS        *int `json:"stop_grace_ms"`
	QualityIntervalMS  *int `json:"quality_interval_ms"`
	WaveformFPS        *int `json:"waveform_fps"`
}

type jsoncRecorder struct {
	Encodings *jsoncStringList `json:"encodings"`
	ChunkMS   *int             `json:"chunk_ms"`
}

type jsoncVocab struct {
	Global     *jsoncStringList         `json:"global"`
	MaxPhrases *int                     `json:"max_phrases"`
	Sets       map[string]jsoncVocabSet `json:"sets"`
}

type jsoncVocabSet struct {
	Boost   *float64 `json:"boost"`
	Phrases []string `json:"phrases"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	SoundEnable    *bool   `json:"sound_enable"`
	DesktopAppName *string `json:"desktop_app_name"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type jsoncOutput struct {
	Clipboard    *bool   `json:"clipboard"`
	ClipboardCmd *string `json:"clipboard_cmd"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if r := payload.Recognizer; r != nil {
		setTrimmed(&cfg.Recognizer.GRPC, r.GRPC)
		setTrimmed(&cfg.Recognizer.Language, r.Language)
		set(&cfg.Recognizer.MaxAlternatives, r.MaxAlternatives)
		set(&cfg.Recognizer.DialTimeoutMS, r.DialTimeoutMS)
	}

	if a := payload.Audio; a != nil {
		setTrimmed(&cfg.Audio.Input, a.Input)
		setTrimmed(&cfg.Audio.Fallback, a.Fallback)
		set(&cfg.Audio.SampleRate, a.SampleRate)
		set(&cfg.Audio.EchoCancellation, a.EchoCancellation)
		set(&cfg.Audio.NoiseSuppression, a.NoiseSuppression)
		set(&cfg.Audio.AutoGainControl, a.AutoGainControl)
	}

	if s := payload.Session; s != nil {
		set(&cfg.Session.MaxDurationMinutes, s.MaxDurationMinutes)
		set(&cfg.Session.StopGraceMS, s.StopGraceMS)
		set(&cfg.Session.QualityIntervalMS, s.QualityIntervalMS)
		set(&cfg.Session.WaveformFPS, s.WaveformFPS)
	}

	if r := payload.Recorder; r != nil {
		if r.Encodings != nil {
			cfg.Recorder.Encodings = append([]string(nil), (*r.Encodings)...)
		}
		set(&cfg.Recorder.ChunkMS, r.ChunkMS)
	}

	if v := payload.Vocab; v != nil {
		vocabWarnings, err := v.applyTo(&cfg.Vocab)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, vocabWarnings...)
	}

	if i := payload.Indicator; i != nil {
		set(&cfg.Indicator.Enable, i.Enable)
		set(&cfg.Indicator.SoundEnable, i.SoundEnable)
		setTrimmed(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		set(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
	}

	if o := payload.Output; o != nil {
		set(&cfg.Output.Clipboard, o.Clipboard)
		if o.ClipboardCmd != nil {
			raw := *o.ClipboardCmd
			argv, err := parseArgv(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid output.clipboard_cmd: %w", err)
			}
			cfg.Output.ClipboardCmd = CommandConfig{Raw: raw, Argv: argv}
		}
	}

	if payload.Log != nil && payload.Log.Level != nil {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(*payload.Log.Level))
	}

	return warnings, nil
}

// applyTo merges vocab overrides. Named sets replace same-named defaults and
// leave the others in place.
func (v jsoncVocab) applyTo(dst *VocabConfig) ([]Warning, error) {
	var warnings []Warning

	if v.Global != nil {
		dst.GlobalSets = nil
		for _, name := range *v.Global {
			if name = strings.TrimSpace(name); name != "" {
				dst.GlobalSets = append(dst.GlobalSets, name)
			}
		}
	}
	set(&dst.MaxPhrases, v.MaxPhrases)

	if v.Sets == nil {
		return warnings, nil
	}
	merged := make(map[string]VocabSet, len(dst.Sets)+len(v.Sets))
	for name, existing := range dst.Sets {
		merged[name] = existing
	}
	for rawName, override := range v.Sets {
		name := strings.TrimSpace(rawName)
		if name == "" {
			return nil, fmt.Errorf("vocab.sets contains an empty set name")
		}
		entry := VocabSet{Name: name, Phrases: append([]string(nil), override.Phrases...)}
		set(&entry.Boost, override.Boost)
		if len(entry.Phrases) == 0 {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("vocab set %q has no phrases", name)})
		}
		merged[name] = entry
	}
	dst.Sets = merged
	return warnings, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setTrimmed(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
