// Package prompts holds the fixed prompt texts the composite operations wrap
// around user input. Deployments can override any of them with a YAML file.
package prompts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Set struct {
	AnalyzeTranscript string `yaml:"analyze_transcript"`
	CompareImages     string `yaml:"compare_images"`
	Summarize         string `yaml:"summarize"`
	Transcribe        string `yaml:"transcribe"`
	NoTranscript      string `yaml:"no_transcript"`
}

func Default() Set {
	return Set{
		AnalyzeTranscript: "Analyze the following audio transcript and provide insights:",
		CompareImages:     "Compare these two images and describe the differences and similarities.",
		Summarize:         "Provide a concise summary of the following transcript",
		Transcribe:        "Transcribe the speech in this audio verbatim. Return only the transcript text, or nothing if there is no speech.",
		NoTranscript:      "Could not transcribe audio",
	}
}

// Load reads a YAML override file. Keys left out of the file keep their
// defaults. An empty path returns Default().
func Load(path string) (Set, error) {
	set := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("reading prompts file: %w", err)
	}
	var override Set
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Set{}, fmt.Errorf("parsing prompts file: %w", err)
	}
	set.merge(override)
	return set, nil
}

func (s *Set) merge(o Set) {
	pick := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	pick(&s.AnalyzeTranscript, o.AnalyzeTranscript)
	pick(&s.CompareImages, o.CompareImages)
	pick(&s.Summarize, o.Summarize)
	pick(&s.Transcribe, o.Transcribe)
	pick(&s.NoTranscript, o.NoTranscript)
}
