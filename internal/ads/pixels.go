package ads

import (
	"net/url"
	"strings"

	"adloader/internal/content"
)

// Pixel events and the campaign list each one is appended to.
var pixelEvents = []struct {
	list  string
	event string
}{
	{"countUrls", "cardView"},
	{"playUrls", "play"},
	{"loadUrls", "load"},
}

// TrackingPixels builds the pixel URLs reporting views, plays and loads of a
// sponsored card rendered inside exp. exp may be nil for a standalone card.
// It returns nil when pixelURL is empty or card is not sponsored.
func TrackingPixels(pixelURL string, exp *content.Experience, card *content.Card) map[string][]string {
	if pixelURL == "" || !IsSponsored(card) {
		return nil
	}
	base := url.Values{}
	base.Set("campaign", card.CampaignID.(string))
	base.Set("card", card.ID)
	if exp != nil {
		if exp.ID != "" {
			base.Set("experience", exp.ID)
		}
		for k, v := range exp.Params.Query() {
			if k != "preview" {
				base.Set(k, v)
			}
		}
	}

	sep := "?"
	if strings.Contains(pixelURL, "?") {
		sep = "&"
	}
	out := make(map[string][]string, len(pixelEvents))
	for _, pe := range pixelEvents {
		q := url.Values{}
		for k, v := range base {
			q[k] = v
		}
		q.Set("event", pe.event)
		out[pe.list] = []string{pixelURL + sep + q.Encode()}
	}
	return out
}

// ApplyPixels adds tracking pixels to every sponsored card of exp and
// returns exp. The cards are mutated in place.
func ApplyPixels(pixelURL string, exp *content.Experience) *content.Experience {
	if pixelURL == "" {
		return exp
	}
	for _, card := range SponsoredCards(exp) {
		AddTrackingPixels(TrackingPixels(pixelURL, exp, card), card)
	}
	return exp
}
