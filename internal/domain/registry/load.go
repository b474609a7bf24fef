package registry

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/okian/pitwall/internal/domain/model"
)

//go:embed data/registry.yaml
var defaultData []byte

type document struct {
	Tracks  []trackRecord  `yaml:"tracks"`
	Drivers []driverRecord `yaml:"drivers"`
}

type trackRecord struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Country          string   `yaml:"country"`
	Type             string   `yaml:"type"`
	Difficulty       int      `yaml:"difficulty"`
	OvertakingFactor float64  `yaml:"overtaking_factor"`
	Weather          string   `yaml:"weather"`
	Landmarks        []string `yaml:"landmarks"`
}

type driverRecord struct {
	ID    string      `yaml:"id"`
	Name  string      `yaml:"name"`
	Era   string      `yaml:"era"`
	Team  string      `yaml:"team"`
	Skill float64     `yaml:"skill"`
	Stats CareerStats `yaml:"stats"`
}

// Default loads the registry bundled with the binary.
func Default() (*Registry, error) {
	return Load(bytes.NewReader(defaultData))
}

// LoadFile loads a registry from a YAML file; an empty path means Default.
func LoadFile(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Load decodes a YAML registry document.
func Load(r io.Reader) (*Registry, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	title := cases.Title(language.English)
	tracks := make([]Track, 0, len(doc.Tracks))
	for _, rec := range doc.Tracks {
		name := rec.Name
		if name == "" {
			name = title.String(strings.ReplaceAll(rec.ID, "_", " "))
		}
		weather := model.Weather(rec.Weather)
		if weather == "" {
			weather = model.WeatherSunny
		}
		tracks = append(tracks, Track{
			ID:               rec.ID,
			Name:             name,
			Country:          rec.Country,
			Type:             rec.Type,
			Difficulty:       rec.Difficulty,
			OvertakingFactor: rec.OvertakingFactor,
			Weather:          weather,
			Landmarks:        rec.Landmarks,
		})
	}

	drivers := make([]Driver, 0, len(doc.Drivers))
	for _, rec := range doc.Drivers {
		name := rec.Name
		if name == "" {
			name = title.String(strings.ReplaceAll(rec.ID, "_", " "))
		}
		era := Era(strings.ToLower(rec.Era))
		switch era {
		case EraClassic, EraModern, EraHybrid:
		case "":
			era = EraHybrid
		default:
			return nil, fmt.Errorf("%w: driver %q unknown era %q", ErrInvalidData, rec.ID, rec.Era)
		}
		drivers = append(drivers, Driver{
			ID:    rec.ID,
			Name:  name,
			Era:   era,
			Team:  rec.Team,
			Skill: rec.Skill,
			Stats: rec.Stats,
		})
	}

	return New(drivers, tracks)
}
