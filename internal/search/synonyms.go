package search

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var defaultSynonyms []byte

type synonymFile struct {
	Groups [][]string `yaml:"groups"`
}

// Synonyms maps a token to the other tokens of its groups
type Synonyms map[string][]string

// LoadSynonyms reads the synonym groups from path, or the built-in table when path is empty
func LoadSynonyms(path string) (Synonyms, error) {
	data := defaultSynonyms
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read synonyms: %w", err)
		}
	}
	return ParseSynonyms(data)
}

// ParseSynonyms parses a YAML document with a top-level "groups" list
func ParseSynonyms(data []byte) (Synonyms, error) {
	var f synonymFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse synonyms: %w", err)
	}

	syn := Synonyms{}
	for _, group := range f.Groups {
		var tokens []string
		for _, word := range group {
			tokens = append(tokens, tokenize(word)...)
		}
		for _, t := range tokens {
			for _, other := range tokens {
				if other != t && !contains(syn[t], other) {
					syn[t] = append(syn[t], other)
				}
			}
		}
	}
	return syn, nil
}

// Expand returns the synonyms of token, not including token itself
func (s Synonyms) Expand(token string) []string {
	return s[token]
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
