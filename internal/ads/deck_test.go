package ads

import (
	"testing"

	"github.com/stretchr/testify/require"

	"adloader/internal/content"
)

func card(id string) *content.Card {
	return &content.Card{ID: id, Type: "video"}
}

func sponsored(id, campaign string) *content.Card {
	return &content.Card{ID: id, Type: "video", CampaignID: campaign}
}

func wildcard(id string) *content.Card {
	return &content.Card{ID: id, Type: content.TypeWildcard}
}

func experience(deck ...*content.Card) *content.Experience {
	return &content.Experience{ID: "e-1", Data: content.ExperienceData{Deck: deck}}
}

func ids(deck []*content.Card) []string {
	out := make([]string, 0, len(deck))
	for _, c := range deck {
		out = append(out, c.ID)
	}
	return out
}

func TestIsSponsored(t *testing.T) {
	require.True(t, IsSponsored(sponsored("rc-1", "cam-1")))

	for _, v := range []any{nil, "", 33, true, false, map[string]any{}, []any{}} {
		require.False(t, IsSponsored(&content.Card{ID: "rc-1", CampaignID: v}), "campaignId %#v", v)
	}
	require.False(t, IsSponsored(nil))
}

func TestAddTrackingPixelsIgnoresAbsentLists(t *testing.T) {
	c := sponsored("rc-1", "cam-1")
	c.Campaign = content.Campaign{"countUrls": {"a"}}

	got := AddTrackingPixels(map[string][]string{"countUrls": nil, "playUrls": {}}, c)
	require.Same(t, c, got)
	require.Equal(t, content.Campaign{"countUrls": {"a"}}, c.Campaign)

	bare := card("rc-2")
	AddTrackingPixels(map[string][]string{"countUrls": nil}, bare)
	require.Nil(t, bare.Campaign)
}

func TestAddTrackingPixelsAppends(t *testing.T) {
	c := sponsored("rc-1", "cam-1")
	c.Campaign = content.Campaign{"countUrls": {"a", "b"}}

	AddTrackingPixels(map[string][]string{
		"countUrls": {"c", "d"},
		"fooUrls":   {"e"},
	}, c)
	require.Equal(t, []string{"a", "b", "c", "d"}, c.Campaign["countUrls"])
	require.Equal(t, []string{"e"}, c.Campaign["fooUrls"])

	bare := card("rc-2")
	AddTrackingPixels(map[string][]string{"playUrls": {"p"}}, bare)
	require.Equal(t, content.Campaign{"playUrls": {"p"}}, bare.Campaign)
}

func TestHasAds(t *testing.T) {
	require.False(t, HasAds(experience(card("rc-1"), card("rc-2"))))
	require.False(t, HasAds(experience()))
	require.True(t, HasAds(experience(card("rc-1"), sponsored("rc-2", "cam-1"))))
	require.True(t, HasAds(experience(card("rc-1"), wildcard("w-1"))))
}

func TestSponsoredCardsAndPlaceholdersKeepOrder(t *testing.T) {
	exp := experience(wildcard("w-1"), sponsored("rc-1", "cam-1"), card("rc-2"), wildcard("w-2"), sponsored("rc-3", "cam-2"))

	require.Equal(t, []string{"rc-1", "rc-3"}, ids(SponsoredCards(exp)))
	require.Equal(t, []string{"w-1", "w-2"}, ids(Placeholders(exp)))
	require.Len(t, exp.Data.Deck, 5)
}

func TestRemovePlaceholders(t *testing.T) {
	exp := experience(wildcard("p-1"), card("x"), card("y"), wildcard("p-2"), card("z"), card("w"))

	got := RemovePlaceholders(exp)
	require.Same(t, exp, got)
	require.Equal(t, []string{"x", "y", "z", "w"}, ids(exp.Data.Deck))
}

func TestRemoveSponsoredCards(t *testing.T) {
	exp := experience(sponsored("s-1", "cam-1"), card("x"), wildcard("p-1"), sponsored("s-2", "cam-1"), card("y"))

	RemoveSponsoredCards(exp)
	require.Equal(t, []string{"x", "p-1", "y"}, ids(exp.Data.Deck))
}

func TestSpliceSkipsCandidatesAlreadyInDeck(t *testing.T) {
	c3 := sponsored("rc-3", "cam-1")
	exp := experience(wildcard("w-0"), wildcard("w-1"), wildcard("w-2"), c3)
	placeholders := Placeholders(exp)
	candidates := []*content.Card{
		sponsored("rc-1", "cam-1"),
		sponsored("rc-3", "cam-1"),
		sponsored("rc-2", "cam-1"),
	}

	deck := splice(exp.Data.Deck, placeholders, candidates)
	require.Equal(t, []string{"rc-1", "w-1", "rc-2", "rc-3"}, ids(deck))
	require.Same(t, c3, deck[3])
}

func TestSpliceSkipsCandidateFilledEarlier(t *testing.T) {
	exp := experience(wildcard("w-0"), card("x"), wildcard("w-1"))
	candidates := []*content.Card{sponsored("rc-1", "cam-1"), sponsored("rc-1", "cam-1")}

	deck := splice(exp.Data.Deck, Placeholders(exp), candidates)
	require.Equal(t, []string{"rc-1", "x", "w-1"}, ids(deck))
}

func TestSpliceWithFewerCandidates(t *testing.T) {
	exp := experience(wildcard("w-0"), wildcard("w-1"))

	deck := splice(exp.Data.Deck, Placeholders(exp), []*content.Card{sponsored("rc-1", "cam-1")})
	require.Equal(t, []string{"rc-1", "w-1"}, ids(deck))
}

func TestTrackingPixels(t *testing.T) {
	exp := experience()
	exp.Params = content.RenderParams{Container: "embed", Preview: true}
	c := sponsored("rc-1", "cam-1")

	pixels := TrackingPixels("https://px.example.com/pixel.gif", exp, c)
	require.Len(t, pixels, 3)
	require.Equal(t,
		[]string{"https://px.example.com/pixel.gif?campaign=cam-1&card=rc-1&container=embed&event=cardView&experience=e-1"},
		pixels["countUrls"])
	require.Contains(t, pixels["playUrls"][0], "event=play")
	require.Contains(t, pixels["loadUrls"][0], "event=load")

	require.Nil(t, TrackingPixels("", exp, c))
	require.Nil(t, TrackingPixels("https://px.example.com/pixel.gif", exp, card("rc-2")))
	require.Contains(t, TrackingPixels("https://px.example.com/p?v=1", nil, c)["countUrls"][0], "/p?v=1&campaign=cam-1")
}

func TestApplyPixelsOnlyTouchesSponsoredCards(t *testing.T) {
	exp := experience(card("rc-0"), sponsored("rc-1", "cam-1"))

	ApplyPixels("https://px.example.com/pixel.gif", exp)
	require.Nil(t, exp.Data.Deck[0].Campaign)
	require.Len(t, exp.Data.Deck[1].Campaign["countUrls"], 1)
}

func TestSpliceAcceptsCandidateWithoutID(t *testing.T) {
	exp := experience(&content.Card{Type: content.TypeWildcard}, &content.Card{Type: content.TypeWildcard})
	candidates := []*content.Card{{Type: "video", CampaignID: "cam-1"}, sponsored("rc-2", "cam-1")}

	deck := splice(exp.Data.Deck, Placeholders(exp), candidates)
	require.Same(t, candidates[0], deck[0])
	require.Same(t, candidates[1], deck[1])
}
