package pubgapi

import "encoding/json"

// The upstream API returns a JSON:API-flavored document: a `data` root plus
// an `included` array of heterogeneous entries tagged by `type`. Rather than
// passing around an untyped map (spec §9 design note), each included kind is
// decoded into its own small tagged struct by IncludedEnvelope.

// PlayersResponse is the response body of the player lookup endpoint.
type PlayersResponse struct {
	Data []PlayerData `json:"data"`
}

// PlayerData is one player entry in a lookup response.
type PlayerData struct {
	Type          string             `json:"type"`
	ID            string             `json:"id"`
	Attributes    PlayerAttributes   `json:"attributes"`
	Relationships PlayerRelationships `json:"relationships"`
}

// PlayerAttributes carries the player's account name.
type PlayerAttributes struct {
	Name string `json:"name"`
}

// PlayerRelationships holds the player's recent match id list, which
// discovery diffs against the ledger.
type PlayerRelationships struct {
	Matches RelationshipList `json:"matches"`
}

// RecentMatchIDs extracts the match ids referenced in this player's
// relationships.
func (p PlayerData) RecentMatchIDs() []string {
	ids := make([]string, 0, len(p.Relationships.Matches.Data))
	for _, ref := range p.Relationships.Matches.Data {
		ids = append(ids, ref.ID)
	}
	return ids
}

// MatchResponse is the response body of the match-detail endpoint: a `data`
// root describing the match itself, plus `included` rosters, participants,
// and the telemetry asset.
type MatchResponse struct {
	Data     MatchData          `json:"data"`
	Included []IncludedEnvelope `json:"included"`
}

// MatchData is the match document's own attributes and relationships.
type MatchData struct {
	Type          string              `json:"type"`
	ID            string              `json:"id"`
	Attributes    MatchAttributes     `json:"attributes"`
	Relationships MatchRelationships  `json:"relationships"`
}

// MatchAttributes mirrors the upstream fields consumed by discovery and the
// summary worker (§3 Match ledger row, §4.5).
type MatchAttributes struct {
	CreatedAt     string `json:"createdAt"`
	Duration      int    `json:"duration"`
	GameMode      string `json:"gameMode"`
	MapName       string `json:"mapName"`
	IsCustomMatch bool   `json:"isCustomMatch"`
	MatchType     string `json:"matchType"`
	TitleID       string `json:"titleId"`
}

// MatchRelationships holds the `data.relationships.assets[0].id` pointer
// the summary worker walks to find the telemetry asset (spec §4.7 step 4).
type MatchRelationships struct {
	Assets RelationshipList `json:"assets"`
	Rosters RelationshipList `json:"rosters"`
}

// RelationshipList is a JSON:API "to-many" relationship pointer list.
type RelationshipList struct {
	Data []RelationshipRef `json:"data"`
}

// RelationshipRef identifies one related resource by type+id.
type RelationshipRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// IncludedEnvelope is the common shape of every `included[]` entry before
// its type-specific attributes are decoded.
type IncludedEnvelope struct {
	Type          string          `json:"type"`
	ID            string          `json:"id"`
	Attributes    json.RawMessage `json:"attributes"`
	Relationships json.RawMessage `json:"relationships"`
}

// AsAsset decodes this envelope as a telemetry asset entry. Callers should
// check Type == "asset" first.
func (e IncludedEnvelope) AsAsset() (AssetAttributes, error) {
	var a AssetAttributes
	err := json.Unmarshal(e.Attributes, &a)
	return a, err
}

// AssetAttributes carries the telemetry CDN URL (§6: derived from
// `included[type=asset].attributes.URL`).
type AssetAttributes struct {
	URL         string `json:"URL"`
	CreatedAt   string `json:"createdAt"`
	Description string `json:"description"`
}

// AsRoster decodes this envelope as a team roster entry.
func (e IncludedEnvelope) AsRoster() (RosterAttributes, []RelationshipRef, error) {
	var a RosterAttributes
	if err := json.Unmarshal(e.Attributes, &a); err != nil {
		return a, nil, err
	}
	var rel struct {
		Participants RelationshipList `json:"participants"`
	}
	if len(e.Relationships) > 0 {
		if err := json.Unmarshal(e.Relationships, &rel); err != nil {
			return a, nil, err
		}
	}
	return a, rel.Participants.Data, nil
}

// RosterAttributes carries the placement outcome for a team in the match.
type RosterAttributes struct {
	Rank int  `json:"rank"`
	Won  bool `json:"won,string"`
	TeamID int `json:"teamId"`
}

// AsParticipant decodes this envelope as a per-player participant entry.
func (e IncludedEnvelope) AsParticipant() (ParticipantAttributes, error) {
	var a ParticipantAttributes
	err := json.Unmarshal(e.Attributes, &a)
	return a, err
}

// ParticipantAttributes is the full per-participant statistic set (§3
// MatchParticipant summary row).
type ParticipantAttributes struct {
	Stats ParticipantStats `json:"stats"`
}

// ParticipantStats is the upstream participant.stats object.
type ParticipantStats struct {
	PlayerID        string  `json:"playerId"`
	Name            string  `json:"name"`
	Kills           int     `json:"kills"`
	Assists         int     `json:"assists"`
	Boosts          int     `json:"boosts"`
	Heals           int     `json:"heals"`
	DamageDealt     float64 `json:"damageDealt"`
	DBNOs           int     `json:"DBNOs"`
	DeathType       string  `json:"deathType"`
	HeadshotKills   int     `json:"headshotKills"`
	KillPlace       int     `json:"killPlace"`
	LongestKill     float64 `json:"longestKill"`
	RideDistance    float64 `json:"rideDistance"`
	RoadKills       int     `json:"roadKills"`
	SwimDistance    float64 `json:"swimDistance"`
	TeamKills       int     `json:"teamKills"`
	TimeSurvived    float64 `json:"timeSurvived"`
	VehicleDestroys int     `json:"vehicleDestroys"`
	WalkDistance    float64 `json:"walkDistance"`
	WeaponsAcquired int     `json:"weaponsAcquired"`
	WinPlace        int     `json:"winPlace"`
}

// TelemetryEvent is one entry of the telemetry event array. Attributes are
// kept raw and type-switched on EventType by internal/telemetry's
// extractors, mirroring the JSON:API heterogeneity of the match document.
type TelemetryEvent struct {
	EventType string          `json:"_T"`
	Timestamp string          `json:"_D"`
	Raw       json.RawMessage `json:"-"`
}
