package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Recognizer: RecognizerConfig{
			GRPC:            "127.0.0.1:50051",
			Language:        "en-US",
			MaxAlternatives: 3,
			DialTimeoutMS:   3000,
		},
		Audio: AudioConfig{
			Input:            "default",
			Fallback:         "default",
			SampleRate:       48000,
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		},
		Session: SessionConfig{
			MaxDurationMinutes: 30,
			StopGraceMS:        500,
			QualityIntervalMS:  500,
			WaveformFPS:        60,
		},
		Recorder: RecorderConfig{
			Encodings: []string{"audio/webm;codecs=opus", "audio/ogg;codecs=opus", "audio/wav"},
			ChunkMS:   1000,
		},
		Vocab: VocabConfig{
			GlobalSets: nil,
			Sets:       map[string]VocabSet{},
			MaxPhrases: 1024,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			SoundEnable:    true,
			DesktopAppName: "scribe-indicator",
			ErrorTimeoutMS: 1600,
		},
		Output: OutputConfig{
			Clipboard:    true,
			ClipboardCmd: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		},
		Log: LogConfig{Level: "info"},
	}
}
