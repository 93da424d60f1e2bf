package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk list of core topics and their seed keywords.
//
//	topics:
//	  - label: machine learning
//	    keywords: [neural network, training data]
//	  - label: ai
type SeedFile struct {
	Topics []SeedTopic `yaml:"topics"`
}

// SeedTopic is one core topic entry
type SeedTopic struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// LoadSeeds reads a seed file. An empty path yields an empty seed set.
func LoadSeeds(path string) (map[string][]string, error) {
	if path == "" {
		return map[string][]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeeds(data)
}

// ParseSeeds decodes seed YAML into label → keywords. Duplicate labels have
// their keywords concatenated.
func ParseSeeds(data []byte) (map[string][]string, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}

	seeds := make(map[string][]string, len(file.Topics))
	for i, topic := range file.Topics {
		label := strings.TrimSpace(topic.Label)
		if label == "" {
			return nil, fmt.Errorf("seed topic %d has no label", i)
		}
		keywords := seeds[label]
		for _, kw := range topic.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if keywords == nil {
			keywords = []string{}
		}
		seeds[label] = keywords
	}
	return seeds, nil
}
