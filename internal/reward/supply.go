package reward

import (
	"errors"
	"fmt"
	"os"

	"github.com/dragonvein/dragonvein-server-go/internal/hand"
	"gopkg.in/yaml.v3"
)

// Site is a physical check-in location. Coordinates are display data only.
type Site struct {
	ID          int64   `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Lat         float64 `yaml:"lat" json:"lat"`
	Lng         float64 `yaml:"lng" json:"lng"`
}

// Manifest describes the fixed supply of an event.
type Manifest struct {
	Sites []Site           `yaml:"sites"`
	Decks int              `yaml:"decks"`
	Items map[ItemKind]int `yaml:"items"`
}

// LoadManifest reads a supply manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read supply manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a YAML supply manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal supply manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest for unusable values.
func (m *Manifest) Validate() error {
	if len(m.Sites) == 0 {
		return errors.New("supply manifest has no sites")
	}
	seen := make(map[int64]bool, len(m.Sites))
	for _, s := range m.Sites {
		if s.ID <= 0 {
			return fmt.Errorf("site %q has non-positive id %d", s.Name, s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate site id %d", s.ID)
		}
		seen[s.ID] = true
	}
	if m.Decks < 0 {
		return fmt.Errorf("decks must not be negative, got %d", m.Decks)
	}
	for kind, n := range m.Items {
		if _, err := ParseItemKind(string(kind)); err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("item count for %s must not be negative, got %d", kind, n)
		}
	}
	if m.Decks == 0 && m.itemTotal() == 0 {
		return errors.New("supply manifest seeds nothing")
	}
	return nil
}

func (m *Manifest) itemTotal() int {
	total := 0
	for _, n := range m.Items {
		total += n
	}
	return total
}

// BuildSupply expands the manifest into unclaimed pool entries. Each deck
// is 52 suited cards plus one black and one red joker.
func (m *Manifest) BuildSupply() ([]Card, []Item) {
	suits := []hand.Suit{hand.SuitSpades, hand.SuitHearts, hand.SuitClubs, hand.SuitDiamonds}

	cards := make([]Card, 0, m.Decks*54)
	for d := 0; d < m.Decks; d++ {
		for _, s := range suits {
			for _, r := range hand.SuitedRanks {
				cards = append(cards, Card{Suit: s, Rank: r})
			}
		}
		cards = append(cards,
			Card{Suit: hand.SuitNone, Rank: hand.RankBlackJoker},
			Card{Suit: hand.SuitNone, Rank: hand.RankRedJoker},
		)
	}

	items := make([]Item, 0, m.itemTotal())
	for _, kind := range ItemKinds {
		for i := 0; i < m.Items[kind]; i++ {
			items = append(items, Item{Kind: kind})
		}
	}
	return cards, items
}
