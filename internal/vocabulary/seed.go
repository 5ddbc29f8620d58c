package vocabulary

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk shape of a term dictionary export.
type SeedFile struct {
	Terms []SeedTerm `yaml:"terms"`
}

type SeedTerm struct {
	Spoken   string `yaml:"spoken"`
	Mapped   string `yaml:"mapped"`
	Category string `yaml:"category,omitempty"`
}

// ImportSeed loads terms from a YAML file. Terms already present (same
// spoken and mapped pair) are skipped so re-imports are idempotent.
func (s *Store) ImportSeed(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	imported := 0
	for _, t := range seed.Terms {
		if t.Spoken == "" || t.Mapped == "" {
			continue
		}
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM terms WHERE spoken = ? AND mapped = ? AND active = 1`,
			normalize(t.Spoken), t.Mapped).Scan(&count)
		if err != nil {
			return imported, err
		}
		if count > 0 {
			continue
		}
		if _, err := s.Add(ctx, t.Spoken, t.Mapped, t.Category); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
