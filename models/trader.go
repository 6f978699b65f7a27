package models

import "encoding/json"

// TraderEntry is one row of a copy-trading leaderboard
type TraderEntry struct {
	UID      string `json:"uid"`
	Nickname string `json:"nickname,omitempty"`
}

// UnmarshalJSON accepts uid as either a string or a number
func (t *TraderEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		UID      json.RawMessage `json:"uid"`
		Nickname json.RawMessage `json:"nickName"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = TraderEntry{}
	if raw.UID != nil {
		t.UID = rawString(raw.UID)
	}
	if raw.Nickname != nil {
		t.Nickname = rawString(raw.Nickname)
	}
	return nil
}

// TraderPage is the leaderboard payload. Some upstream versions wrap the
// content list in a data object and some return it at the top level.
type TraderPage struct {
	Data *struct {
		Content []TraderEntry `json:"content"`
	} `json:"data"`
	Content []TraderEntry `json:"content"`
}

// Entries returns data.content when present, else the top-level content
func (p TraderPage) Entries() []TraderEntry {
	if p.Data != nil && len(p.Data.Content) > 0 {
		return p.Data.Content
	}
	return p.Content
}

// UIDs returns the non-empty trader UIDs in page order
func (p TraderPage) UIDs() []string {
	entries := p.Entries()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.UID != "" {
			out = append(out, e.UID)
		}
	}
	return out
}
