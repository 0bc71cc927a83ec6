package provider

const KindMarketo = "marketo"

// Marketo is the Marketo CRM lead-source connector definition.
type Marketo struct{}

func (*Marketo) Kind() string        { return KindMarketo }
func (*Marketo) DisplayName() string { return "Marketo" }
func (*Marketo) IngestionPath() string {
	return KindMarketo
}

func (*Marketo) Tables() []TableBinding {
	return []TableBinding{
		{Kind: "lead", Label: "Leads", DocumentKey: "id"},
		{Kind: "activity", Label: "Lead activities", DocumentKey: "marketoGUID"},
		{Kind: "program", Label: "Programs", DocumentKey: "id"},
	}
}
