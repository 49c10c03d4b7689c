// Package identity generates the human-shareable contact codes and random
// display names handed out at registration.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"e2ee-relay/internal/store"
)

// codeChars omits I, O, 0 and 1 to avoid visual confusion.
const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var ErrExhausted = errors.New("identity: could not generate a unique value")

var adjectives = []string{
	"Cosmic", "Stellar", "Lunar", "Solar", "Arctic", "Mystic", "Silent", "Swift",
	"Noble", "Brave", "Calm", "Gentle", "Vivid", "Bright", "Wild", "Bold",
	"Clever", "Fierce", "Golden", "Hidden", "Iron", "Jade", "Kind", "Lucky",
	"Mighty", "Nimble", "Proud", "Quick", "Royal", "Sharp", "Tough", "Warm",
	"Ancient", "Binary", "Crystal", "Dark", "Electric", "Frozen", "Grand", "Hollow",
	"Quantum", "Rapid", "Smooth", "Tidal", "Ultra", "Vast", "Wired", "Zen",
	"Amber", "Blue", "Coral", "Dusk", "Ember", "Flint", "Gray", "Haze",
	"Astral", "Blaze", "Chrome", "Drift", "Echo", "Forge", "Ghost", "Hyper",
}

var nouns = []string{
	"Penguin", "Falcon", "Wolf", "Tiger", "Eagle", "Raven", "Fox", "Bear",
	"Hawk", "Lynx", "Otter", "Panda", "Crane", "Cobra", "Dove", "Elk",
	"Gecko", "Heron", "Ibis", "Jaguar", "Koala", "Lion", "Moose", "Newt",
	"Owl", "Pike", "Robin", "Shark", "Trout", "Viper", "Whale", "Yak",
	"Atlas", "Beacon", "Comet", "Delta", "Enigma", "Flare", "Glyph", "Helix",
	"Index", "Joker", "Karma", "Laser", "Matrix", "Nexus", "Omega", "Pulse",
	"Quest", "Relay", "Signal", "Token", "Unity", "Vector", "Warden", "Zenith",
	"Anchor", "Blade", "Crown", "Dagger", "Edge", "Grove", "Guard", "Helm",
}

// ContactCode produces an unused XXXX-XXXX code, retrying on collision.
func ContactCode(ctx context.Context, users *store.UserStore) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		code := make([]byte, 8)
		for i, b := range buf {
			code[i] = codeChars[int(b)%len(codeChars)]
		}
		formatted := string(code[:4]) + "-" + string(code[4:])

		taken, err := users.ContactCodeTaken(ctx, formatted)
		if err != nil {
			return "", err
		}
		if !taken {
			return formatted, nil
		}
	}
	return "", ErrExhausted
}

// DisplayName produces an unused "Adjective Noun NN" name.
func DisplayName(ctx context.Context, users *store.UserStore) (string, error) {
	for attempt := 0; attempt < 50; attempt++ {
		adj, err := pick(adjectives)
		if err != nil {
			return "", err
		}
		noun, err := pick(nouns)
		if err != nil {
			return "", err
		}
		n, err := rand.Int(rand.Reader, big.NewInt(99))
		if err != nil {
			return "", err
		}
		name := fmt.Sprintf("%s %s %02d", adj, noun, n.Int64()+1)

		taken, err := users.DisplayNameTaken(ctx, name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
	}
	return "", ErrExhausted
}

func pick(list []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
	if err != nil {
		return "", err
	}
	return list[n.Int64()], nil
}
