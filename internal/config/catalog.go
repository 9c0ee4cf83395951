package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Persona is a reader character the narrative is written as
type Persona struct {
	ID          string `toml:"id" json:"id"`
	Name        string `toml:"name" json:"name"`
	Description string `toml:"description" json:"description"`
	Voice       string `toml:"voice" json:"-"`
}

// Tone adjusts how direct the reading is
type Tone struct {
	ID          string `toml:"id" json:"id"`
	Name        string `toml:"name" json:"name"`
	Instruction string `toml:"instruction" json:"-"`
}

// Catalog is the user-facing choice list plus the output contract with the generator
type Catalog struct {
	Personas      []Persona `toml:"personas"`
	Tones         []Tone    `toml:"tones"`
	Models        []string  `toml:"models"`
	MatchPatterns []string  `toml:"match_patterns"`
}

// DefaultCatalog is used when no catalog file is configured
func DefaultCatalog() *Catalog {
	return &Catalog{
		Personas: []Persona{
			{
				ID:          "stella",
				Name:        "星読みのステラ",
				Description: "穏やかに星の巡りを語る占星術師",
				Voice:       "あなたは星読みのステラ。星の巡りになぞらえ、やわらかな敬語で語りかけます。",
			},
			{
				ID:          "kaito",
				Name:        "恋愛参謀カイト",
				Description: "データを根拠に作戦を立てる参謀",
				Voice:       "あなたは恋愛参謀カイト。会話の数字を根拠に、論理的で具体的な作戦を示します。",
			},
			{
				ID:          "nana",
				Name:        "親友のナナ",
				Description: "本音で寄り添う親友",
				Voice:       "あなたは相談者の親友ナナ。くだけた口調で、率直かつ温かく話します。",
			},
		},
		Tones: []Tone{
			{ID: "gentle", Name: "やさしく", Instruction: "否定的な点も前向きな言い方で伝えてください。"},
			{ID: "honest", Name: "正直に", Instruction: "良い点も懸念点も遠慮せずにはっきり伝えてください。"},
			{ID: "strict", Name: "厳しく", Instruction: "甘い見通しは避け、改善点を優先して指摘してください。"},
		},
	}
}

// LoadCatalog reads a TOML catalog; missing sections keep their defaults
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	var fromFile Catalog
	if _, err := toml.DecodeFile(path, &fromFile); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	if len(fromFile.Personas) > 0 {
		catalog.Personas = fromFile.Personas
	}
	if len(fromFile.Tones) > 0 {
		catalog.Tones = fromFile.Tones
	}
	catalog.Models = fromFile.Models
	catalog.MatchPatterns = fromFile.MatchPatterns

	return catalog, nil
}

// Persona looks up a persona by ID, falling back to the first entry
func (c *Catalog) Persona(id string) Persona {
	for _, p := range c.Personas {
		if p.ID == id {
			return p
		}
	}
	return c.Personas[0]
}

// Tone looks up a tone by ID, falling back to the first entry
func (c *Catalog) Tone(id string) Tone {
	for _, t := range c.Tones {
		if t.ID == id {
			return t
		}
	}
	return c.Tones[0]
}
