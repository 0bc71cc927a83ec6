package provider

const KindMixpanel = "mixpanel"

// Mixpanel is the product-analytics connector definition.
type Mixpanel struct{}

func (*Mixpanel) Kind() string        { return KindMixpanel }
func (*Mixpanel) DisplayName() string { return "Mixpanel" }
func (*Mixpanel) IngestionPath() string {
	return KindMixpanel
}

func (*Mixpanel) Tables() []TableBinding {
	return []TableBinding{
		{Kind: "event", Label: "Events", DocumentKey: "insert_id"},
		{Kind: "user_profile", Label: "User profiles", DocumentKey: "distinct_id"},
		{Kind: "cohort", Label: "Cohorts", DocumentKey: "id"},
	}
}
