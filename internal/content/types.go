package content

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// TypeWildcard marks a deck slot reserved for a sponsored card.
const TypeWildcard = "wildcard"

// Campaign holds tracking pixel URL templates keyed by event name
// (countUrls, playUrls, loadUrls, ...).
type Campaign map[string][]string

type Card struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	// CampaignID is kept as decoded so malformed upstream values (numbers,
	// objects) survive a round trip and are simply not sponsored.
	CampaignID any            `json:"campaignId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Campaign   Campaign       `json:"campaign,omitempty"`

	// CampaignExtra holds campaign keys whose value is not a list of strings.
	CampaignExtra map[string]json.RawMessage `json:"-"`
	// Extra holds every other top-level card field, untouched.
	Extra map[string]json.RawMessage `json:"-"`
}

// cardFields carries the modelled fields of Card without its codec.
type cardFields struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	CampaignID any            `json:"campaignId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

func (c Card) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(cardFields{ID: c.ID, Type: c.Type, CampaignID: c.CampaignID, Data: c.Data})
	if err != nil {
		return nil, err
	}
	campaign, err := c.marshalCampaign()
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 && campaign == nil {
		return raw, nil
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		if _, known := out[k]; !known && k != "campaign" {
			out[k] = v
		}
	}
	if campaign != nil {
		out["campaign"] = campaign
	}
	return json.Marshal(out)
}

func (c Card) marshalCampaign() (json.RawMessage, error) {
	if len(c.Campaign) == 0 && len(c.CampaignExtra) == 0 {
		return nil, nil
	}
	out := make(map[string]json.RawMessage, len(c.Campaign)+len(c.CampaignExtra))
	for k, v := range c.CampaignExtra {
		out[k] = v
	}
	for k, v := range c.Campaign {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = raw
	}
	return json.Marshal(out)
}

func (c *Card) UnmarshalJSON(b []byte) error {
	var known cardFields
	if err := json.Unmarshal(b, &known); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*c = Card{ID: known.ID, Type: known.Type, CampaignID: known.CampaignID, Data: known.Data}

	if raw, ok := fields["campaign"]; ok {
		if err := c.unmarshalCampaign(raw); err != nil {
			return err
		}
	}
	for _, k := range []string{"id", "type", "campaignId", "data", "campaign"} {
		delete(fields, k)
	}
	if len(fields) > 0 {
		c.Extra = fields
	}
	return nil
}

// unmarshalCampaign keeps string-list keys in Campaign and any other value
// raw in CampaignExtra.
func (c *Card) unmarshalCampaign(raw json.RawMessage) error {
	var block map[string]json.RawMessage
	if err := json.Unmarshal(raw, &block); err != nil {
		return fmt.Errorf("card %s: campaign: %w", c.ID, err)
	}
	if block == nil {
		return nil
	}
	c.Campaign = make(Campaign, len(block))
	for k, v := range block {
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			c.Campaign[k] = list
			continue
		}
		if c.CampaignExtra == nil {
			c.CampaignExtra = make(map[string]json.RawMessage)
		}
		c.CampaignExtra[k] = v
	}
	return nil
}

// IsPlaceholder reports whether the card is a wildcard slot.
func (c *Card) IsPlaceholder() bool {
	return c != nil && c.Type == TypeWildcard
}

// RenderParams are the per-render values a request binds to an experience.
type RenderParams struct {
	Container string `json:"container,omitempty"`
	HostApp   string `json:"hostApp,omitempty"`
	Network   string `json:"network,omitempty"`
	PageURL   string `json:"pageUrl,omitempty"`
	Preview   bool   `json:"preview,omitempty"`
}

type Experience struct {
	ID         string         `json:"id"`
	Categories []string       `json:"categories,omitempty"`
	Data       ExperienceData `json:"data"`
	Params     RenderParams   `json:"-"`
}

// ExperienceData is the experience payload. Only the deck is interpreted;
// every other key is carried through untouched.
type ExperienceData struct {
	Deck  []*Card
	Extra map[string]json.RawMessage
}

func (d ExperienceData) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Extra)+1)
	for k, v := range d.Extra {
		out[k] = v
	}
	deck := d.Deck
	if deck == nil {
		deck = []*Card{}
	}
	raw, err := json.Marshal(deck)
	if err != nil {
		return nil, err
	}
	out["deck"] = raw
	return json.Marshal(out)
}

func (d *ExperienceData) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	d.Deck = nil
	if raw, ok := fields["deck"]; ok {
		if err := json.Unmarshal(raw, &d.Deck); err != nil {
			return err
		}
		delete(fields, "deck")
	}
	d.Extra = nil
	if len(fields) > 0 {
		d.Extra = fields
	}
	return nil
}

// Query is a flat set of query-string parameters passed verbatim upstream.
type Query map[string]string

// Values encodes q for a URL query string.
func (q Query) Values() url.Values {
	v := make(url.Values, len(q))
	for k, val := range q {
		v.Set(k, val)
	}
	return v
}

// Bool reports whether key holds a truthy value.
func (q Query) Bool(key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(q[key]))
	return err == nil && b
}

// Merge returns a new Query holding q overlaid with other.
func (q Query) Merge(other Query) Query {
	out := make(Query, len(q)+len(other))
	for k, v := range q {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Keys returns the keys of q in sorted order.
func (q Query) Keys() []string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Query returns the render params as a lookup context, omitting empty fields.
func (p RenderParams) Query() Query {
	q := Query{}
	if p.Container != "" {
		q["container"] = p.Container
	}
	if p.HostApp != "" {
		q["hostApp"] = p.HostApp
	}
	if p.Network != "" {
		q["network"] = p.Network
	}
	if p.PageURL != "" {
		q["pageUrl"] = p.PageURL
	}
	if p.Preview {
		q["preview"] = "true"
	}
	return q
}
