package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-interview-coach/internal/config"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

type seedFile struct {
	SubjectAreas []struct {
		ID           string   `yaml:"id"`
		Name         string   `yaml:"name"`
		Field        string   `yaml:"field"`
		Competencies []string `yaml:"competencies"`
	} `yaml:"subject_areas"`
}

// seedSubjectAreas upserts the career tracks from the configured YAML file.
// Safe to run repeatedly.
func seedSubjectAreas(ctx context.Context, cfg config.Config, repo domain.SubjectAreaRepository) error {
	data, err := os.ReadFile(cfg.SeedFile)
	if err != nil {
		return fmt.Errorf("op=seed: read %s: %w", cfg.SeedFile, err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("op=seed: parse %s: %w", cfg.SeedFile, err)
	}
	if len(f.SubjectAreas) == 0 {
		return fmt.Errorf("op=seed: %s contains no subject areas", cfg.SeedFile)
	}
	for _, sa := range f.SubjectAreas {
		if sa.ID == "" || sa.Name == "" {
			return fmt.Errorf("op=seed: subject area needs id and name, got id=%q name=%q", sa.ID, sa.Name)
		}
		err := repo.Upsert(ctx, domain.SubjectArea{
			ID:           sa.ID,
			Name:         sa.Name,
			Field:        sa.Field,
			Competencies: sa.Competencies,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
