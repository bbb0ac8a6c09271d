// Package identity produces display-only pseudonyms for anonymous posts.
package identity

import "math/rand/v2"

var qualifiers = []string{
	"Spicy",
	"Iced",
	"Salty",
	"Cozy",
	"Chaotic",
	"Midnight",
	"Electric",
	"Cosmic",
	"Smoky",
	"Velvet",
	"Bubbly",
	"Neon",
	"Feral",
	"Ghosted",
	"Delulu",
}

var teas = []string{
	"Matcha",
	"Earl Grey",
	"Oolong",
	"Jasmine",
	"Chai",
	"Genmaicha",
	"Thai Tea",
	"Milk Tea",
	"Bubble Tea",
	"Yerba",
	"Peppermint",
	"Black Tea",
	"Green Tea",
	"Hojicha",
	"London Fog",
}

// Generate returns a random two-token tea name like "Spicy Matcha". The label
// is flavor only: collisions are expected and it must never be used for
// authorization or deduplication.
func Generate() string {
	qualifier := qualifiers[rand.IntN(len(qualifiers))]
	tea := teas[rand.IntN(len(teas))]
	return qualifier + " " + tea
}
