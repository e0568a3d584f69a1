package ads

import "adloader/internal/content"

// IsSponsored reports whether card belongs to a campaign, i.e. its
// campaignId is a non-empty string.
func IsSponsored(card *content.Card) bool {
	if card == nil {
		return false
	}
	id, ok := card.CampaignID.(string)
	return ok && id != ""
}

// AddTrackingPixels appends every non-empty pixel list onto the matching
// campaign list of card, creating the campaign block or list as needed. It
// returns card.
func AddTrackingPixels(pixels map[string][]string, card *content.Card) *content.Card {
	for event, urls := range pixels {
		if len(urls) == 0 {
			continue
		}
		if card.Campaign == nil {
			card.Campaign = content.Campaign{}
		}
		card.Campaign[event] = append(card.Campaign[event], urls...)
	}
	return card
}

// HasAds reports whether the deck holds a sponsored card or a placeholder.
func HasAds(exp *content.Experience) bool {
	for _, card := range exp.Data.Deck {
		if IsSponsored(card) || card.IsPlaceholder() {
			return true
		}
	}
	return false
}

// SponsoredCards returns the sponsored cards of the deck in deck order.
func SponsoredCards(exp *content.Experience) []*content.Card {
	return filterDeck(exp.Data.Deck, IsSponsored)
}

// Placeholders returns the placeholders of the deck in deck order.
func Placeholders(exp *content.Experience) []*content.Card {
	return filterDeck(exp.Data.Deck, (*content.Card).IsPlaceholder)
}

// RemoveSponsoredCards drops sponsored cards from the deck and returns exp.
func RemoveSponsoredCards(exp *content.Experience) *content.Experience {
	exp.Data.Deck = filterDeck(exp.Data.Deck, func(c *content.Card) bool { return !IsSponsored(c) })
	return exp
}

// RemovePlaceholders drops placeholders from the deck and returns exp.
func RemovePlaceholders(exp *content.Experience) *content.Experience {
	exp.Data.Deck = filterDeck(exp.Data.Deck, func(c *content.Card) bool { return !c.IsPlaceholder() })
	return exp
}

func filterDeck(deck []*content.Card, keep func(*content.Card) bool) []*content.Card {
	out := make([]*content.Card, 0, len(deck))
	for _, card := range deck {
		if card != nil && keep(card) {
			out = append(out, card)
		}
	}
	return out
}

// splice pairs placeholders with candidates by position and writes each
// candidate over its placeholder, unless the candidate's id is already
// present at another deck position. Placeholders left unfilled stay in the
// deck for the caller to strip.
func splice(deck []*content.Card, placeholders, candidates []*content.Card) []*content.Card {
	for i, ph := range placeholders {
		if i >= len(candidates) {
			break
		}
		card := candidates[i]
		if card == nil {
			continue
		}
		pos := indexOf(deck, ph)
		if pos < 0 || containsIDElsewhere(deck, card.ID, pos) {
			continue
		}
		deck[pos] = card
	}
	return deck
}

func indexOf(deck []*content.Card, target *content.Card) int {
	for i, c := range deck {
		if c == target {
			return i
		}
	}
	return -1
}

// containsIDElsewhere reports whether a card with id sits at a position
// other than skip. An empty id never matches.
func containsIDElsewhere(deck []*content.Card, id string, skip int) bool {
	if id == "" {
		return false
	}
	for i, c := range deck {
		if i != skip && c != nil && c.ID == id {
			return true
		}
	}
	return false
}
