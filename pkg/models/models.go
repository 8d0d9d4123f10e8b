package models

import (
	"fmt"
	"strings"
)

// Category is an event type code: singles/doubles/mixed by gender.
type Category string

const (
	MensSingles   Category = "MS"
	WomensSingles Category = "WS"
	MensDoubles   Category = "MD"
	WomensDoubles Category = "WD"
	MixedDoubles  Category = "XD"
)

// Categories lists every valid category code; warmup and validation range over it.
var Categories = []Category{MensSingles, WomensSingles, MensDoubles, WomensDoubles, MixedDoubles}

// ParseCategory validates a raw category string (case-insensitive).
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(raw)))
	switch c {
	case MensSingles, WomensSingles, MensDoubles, WomensDoubles, MixedDoubles:
		return c, nil
	}
	return "", fmt.Errorf("invalid category %q", raw)
}

func (c Category) IsDoubles() bool {
	return c == MensDoubles || c == WomensDoubles || c == MixedDoubles
}

// Scope partitions a ranking into national vs provincial.
type Scope string

const (
	ScopeNational   Scope = "national"
	ScopeProvincial Scope = "provincial"
)

func ParseScope(raw string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(raw))) {
	case ScopeNational, "", "nat":
		return ScopeNational, nil
	case ScopeProvincial:
		return ScopeProvincial, nil
	}
	return "", fmt.Errorf("invalid scope %q", raw)
}

// Tier is the provincial ranking sub-level.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
)

func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(raw)))
	switch t {
	case TierA, TierB, TierC:
		return t, nil
	}
	return "", fmt.Errorf("invalid tier %q", raw)
}

// Player pairs a display name with the upstream's stable player id.
type Player struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// RankingEntry is one ranked slot in a (category, scope, tier) snapshot.
// Entries are immutable once produced; a new scrape replaces the whole snapshot.
// Partner is non-nil exactly for doubles categories.
type RankingEntry struct {
	Rank         int      `json:"rank"`
	Points       float64  `json:"points"`
	Category     Category `json:"category"`
	Scope        Scope    `json:"scope"`
	Tier         Tier     `json:"tier,omitempty"`
	Primary      Player   `json:"player"`
	Partner      *Player  `json:"partner,omitempty"`
	Province     string   `json:"province,omitempty"`
	PreviousRank *int     `json:"previous_rank,omitempty"`
	SnapshotAt   string   `json:"snapshot_at"`
}

type RankingResponse struct {
	Category    Category       `json:"category"`
	Scope       Scope          `json:"scope"`
	Tier        Tier           `json:"tier,omitempty"`
	LastUpdated string         `json:"last_updated"`
	Rankings    []RankingEntry `json:"rankings"`
	TotalCount  int            `json:"total_count"`
}

// TournamentRecord holds one scraped tournament. StartDate/EndDate are
// "2006-01-02" calendar dates; lexicographic compare is valid for that format.
type TournamentRecord struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Location    string   `json:"location,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ExternalURL string   `json:"url,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	DrawsURL    string   `json:"draws_url,omitempty"`
}

type TournamentResponse struct {
	Query       string             `json:"query,omitempty"`
	Source      string             `json:"source"`
	LastUpdated string             `json:"last_updated"`
	Items       []TournamentRecord `json:"items"`
	TotalCount  int                `json:"total_count"`
}

// DrawItem is one draw listed on a tournament's draws page.
type DrawItem struct {
	Name        string `json:"name"`
	Size        string `json:"size,omitempty"`
	Type        string `json:"type,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Consolation string `json:"consolation,omitempty"`
	URL         string `json:"url"`
}

type DrawsResponse struct {
	TournamentID string     `json:"tournament_id"`
	Source       string     `json:"source"`
	LastUpdated  string     `json:"last_updated"`
	Draws        []DrawItem `json:"draws"`
	TotalCount   int        `json:"total_count"`
}

// CalendarEvent is one entry of the provincial circuit calendar. Start/End
// carry the RFC 3339 rendering of the raw unix bounds.
type CalendarEvent struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	StartTS  int64  `json:"start_ts"`
	EndTS    int64  `json:"end_ts"`
	Start    string `json:"start"`
	End      string `json:"end"`
	URL      string `json:"url,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type CalendarResponse struct {
	Source      string          `json:"source"`
	LastUpdated string          `json:"last_updated"`
	Events      []CalendarEvent `json:"events"`
	TotalCount  int             `json:"total_count"`
}

// PlayerRankingItem is one ranking row on a player's profile page.
type PlayerRankingItem struct {
	Category     Category `json:"category"`
	CategoryName string   `json:"category_name"`
	Rank         int      `json:"rank"`
	Points       float64  `json:"points"`
	Partner      *Player  `json:"partner,omitempty"`
}

type PlayerProfile struct {
	PlayerID    string              `json:"player_id"`
	FullName    string              `json:"full_name"`
	MemberID    string              `json:"member_id,omitempty"`
	Province    string              `json:"province,omitempty"`
	ProfileURL  string              `json:"profile_url"`
	Rankings    []PlayerRankingItem `json:"rankings"`
	LastUpdated string              `json:"last_updated"`
}

type PlayerSearchResult struct {
	PlayerID string `json:"player_id"`
	FullName string `json:"full_name"`
	MemberID string `json:"member_id,omitempty"`
	Province string `json:"province,omitempty"`
}

type NewsItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	ImageURL  string `json:"image_url,omitempty"`
	Excerpt   string `json:"excerpt,omitempty"`
	Published string `json:"published,omitempty"`
}

type NewsResponse struct {
	Source      string     `json:"source"`
	LastUpdated string     `json:"last_updated"`
	Items       []NewsItem `json:"items"`
	TotalCount  int        `json:"total_count"`
}

// UserPhoto is the metadata record for one uploaded photo. OwnershipTag is
// derived once at creation (fingerprint or signature depending on the actor's
// mode) and never changes; deletion is authorized by recomputing it.
type UserPhoto struct {
	ID            string `json:"id"`
	OwnerPlayerID string `json:"owner_player_id"`
	FileName      string `json:"file_name"`
	CreatedAt     string `json:"created_at"`
	AddedByMode   string `json:"added_by"`
	OwnershipTag  string `json:"-"`
	ObjectKey     string `json:"-"`
	ImageURL      string `json:"image_url,omitempty"`
}
