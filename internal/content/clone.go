package content

import "encoding/json"

// Clone returns a deep copy of c. Mutating the copy's data or campaign
// never affects c.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	out := *c
	out.CampaignID = cloneValue(c.CampaignID)
	if c.Data != nil {
		out.Data = cloneMap(c.Data)
	}
	if c.Campaign != nil {
		out.Campaign = make(Campaign, len(c.Campaign))
		for k, v := range c.Campaign {
			out.Campaign[k] = append([]string(nil), v...)
		}
	}
	out.CampaignExtra = cloneRaw(c.CampaignExtra)
	out.Extra = cloneRaw(c.Extra)
	return &out
}

// CloneCards deep-copies every card of cards.
func CloneCards(cards []*Card) []*Card {
	if cards == nil {
		return nil
	}
	out := make([]*Card, len(cards))
	for i, c := range cards {
		out[i] = c.Clone()
	}
	return out
}

// Clone returns a deep copy of e.
func (e *Experience) Clone() *Experience {
	if e == nil {
		return nil
	}
	out := *e
	out.Categories = append([]string(nil), e.Categories...)
	out.Data.Deck = CloneCards(e.Data.Deck)
	out.Data.Extra = cloneRaw(e.Data.Extra)
	return &out
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies JSON-shaped values: maps, slices and scalars.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case json.RawMessage:
		return append(json.RawMessage(nil), t...)
	default:
		return v
	}
}
