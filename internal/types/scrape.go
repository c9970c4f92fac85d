package types

// CreateOrganizerInput identifies an organizer either by a known id or by a
// creation tuple (name, url, original id).
type CreateOrganizerInput struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	URL        string `json:"url,omitempty"`
	OriginalID string `json:"original_id,omitempty"`
}

type CommunityRef struct {
	ID string `json:"id"`
}

// NormalizedEventInput is a candidate event produced by a scraper or the
// discovery engine. It is never persisted directly; the upsert resolver is
// the only writer.
type NormalizedEventInput struct {
	OriginalID                string                `json:"original_id,omitempty"`
	Name                      string                `json:"name,omitempty"`
	StartDate                 string                `json:"start_date,omitempty"`
	EndDate                   string                `json:"end_date,omitempty"`
	TicketURL                 string                `json:"ticket_url,omitempty"`
	EventURL                  string                `json:"event_url,omitempty"`
	SourceURL                 string                `json:"source_url,omitempty"`
	ImageURL                  string                `json:"image_url,omitempty"`
	Location                  string                `json:"location,omitempty"`
	Price                     string                `json:"price,omitempty"`
	Description               string                `json:"description,omitempty"`
	Tags                      []string              `json:"tags,omitempty"`
	Organizer                 *CreateOrganizerInput `json:"organizer,omitempty"`
	Communities               []CommunityRef        `json:"communities,omitempty"`
	SourceTicketingPlatform   string                `json:"source_ticketing_platform,omitempty"`
	SourceOriginationPlatform string                `json:"source_origination_platform,omitempty"`
	Visibility                string                `json:"visibility,omitempty"`
	ApprovalStatus            string                `json:"approval_status,omitempty"`
}

// DiscoveredLink is one entry of the link manifest a list page classifies
// into. Ephemeral: produced and consumed within a single discovery call.
type DiscoveredLink struct {
	URL       string `json:"url"`
	StartDate string `json:"start_date,omitempty"`
	Source    string `json:"source,omitempty"`
}

// TaskDescriptor is one unit of work submitted with a job: a URL to scrape,
// or a batch of prefetched candidates that bypass scraping entirely.
type TaskDescriptor struct {
	URL                 string                 `json:"url"`
	Source              string                 `json:"source,omitempty"`
	EventDefaults       *NormalizedEventInput  `json:"event_defaults,omitempty"`
	Prefetched          []NormalizedEventInput `json:"prefetched,omitempty"`
	MultipleEvents      bool                   `json:"multiple_events,omitempty"`
	ExtractFromListPage bool                   `json:"extract_from_list_page,omitempty"`
}
