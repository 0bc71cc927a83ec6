package provider

const KindBingAds = "bingads"

// BingAds is the Microsoft Advertising connector definition. The table set
// mirrors the daily performance reports the ingestion service delivers.
type BingAds struct{}

func (*BingAds) Kind() string        { return KindBingAds }
func (*BingAds) DisplayName() string { return "Microsoft Advertising" }
func (*BingAds) IngestionPath() string {
	return KindBingAds
}

func (*BingAds) Tables() []TableBinding {
	return []TableBinding{
		{Kind: "account_history", Label: "Account history", DocumentKey: "AccountId"},
		{Kind: "campaign_history", Label: "Campaign history", DocumentKey: "CampaignId"},
		{Kind: "campaign_performance_daily_report", Label: "Campaign performance (daily)", DocumentKey: "ReportRowId"},
		{Kind: "ad_group_performance_daily_report", Label: "Ad group performance (daily)", DocumentKey: "ReportRowId"},
		{Kind: "keyword_performance_daily_report", Label: "Keyword performance (daily)", DocumentKey: "ReportRowId"},
	}
}
