package provider

const KindGoogleAds = "googleads"

// GoogleAds is the Google Ads connector definition.
type GoogleAds struct{}

func (*GoogleAds) Kind() string        { return KindGoogleAds }
func (*GoogleAds) DisplayName() string { return "Google Ads" }
func (*GoogleAds) IngestionPath() string {
	return KindGoogleAds
}

func (*GoogleAds) Tables() []TableBinding {
	return []TableBinding{
		{Kind: "account_performance_report", Label: "Account performance", DocumentKey: "segments_date_customer_id"},
		{Kind: "campaign_performance_report", Label: "Campaign performance", DocumentKey: "segments_date_campaign_id"},
		{Kind: "ad_group_performance_report", Label: "Ad group performance", DocumentKey: "segments_date_ad_group_id"},
		{Kind: "click_view_report", Label: "Click view", DocumentKey: "click_view_gclid"},
	}
}
