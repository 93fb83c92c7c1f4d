package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/glimte/mmate-pact/contracts"
	"github.com/glimte/mmate-pact/messaging"
)

// Fixture is a recorded message served as the producer for its description
type Fixture struct {
	Description string                 `json:"description"`
	Contents    json.RawMessage        `json:"contents"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	File string `json:"-"`
}

// Producer returns a producer that always yields the recorded message
func (f Fixture) Producer() messaging.ProducerFunc {
	return func(ctx context.Context) (interface{}, error) {
		return &contracts.ProducedMessage{Contents: f.Contents, Metadata: f.Metadata}, nil
	}
}

// LoadFixtures reads every *.json file in dir. A file holds one fixture or an
// array of fixtures. Descriptions must be unique across the directory.
func LoadFixtures(dir string) ([]Fixture, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("fixture glob failed (%s): %w", dir, err)
	}
	sort.Strings(paths)

	seen := make(map[string]string)
	var fixtures []Fixture
	for _, path := range paths {
		loaded, err := loadFixtureFile(path)
		if err != nil {
			return nil, err
		}
		for _, f := range loaded {
			if f.Description == "" {
				return nil, fmt.Errorf("fixture in %s has no description", path)
			}
			if other, ok := seen[f.Description]; ok {
				return nil, fmt.Errorf("fixture %q defined in both %s and %s", f.Description, other, path)
			}
			seen[f.Description] = path
			fixtures = append(fixtures, f)
		}
	}

	return fixtures, nil
}

// Producers maps each fixture's description to its producer
func Producers(fixtures []Fixture) map[string]messaging.ProducerFunc {
	producers := make(map[string]messaging.ProducerFunc, len(fixtures))
	for _, f := range fixtures {
		producers[f.Description] = f.Producer()
	}
	return producers
}

func loadFixtureFile(path string) ([]Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture load failed (%s): %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	var fixtures []Fixture
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &fixtures)
	} else {
		var f Fixture
		err = json.Unmarshal(trimmed, &f)
		fixtures = []Fixture{f}
	}
	if err != nil {
		return nil, fmt.Errorf("fixture parse failed (%s): %w", path, err)
	}

	for i := range fixtures {
		fixtures[i].File = path
	}
	return fixtures, nil
}
