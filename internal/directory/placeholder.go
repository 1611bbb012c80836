package directory

// PlaceholderNotice labels the fallback dataset so it can never be mistaken
// for live tenant data.
const PlaceholderNotice = "Showing sample data. Connect Microsoft Graph (AZURE_TENANT_ID, AZURE_CLIENT_ID, AZURE_CLIENT_SECRET and admin consent for User.Read.All) to list real users."

// Placeholder returns the demo dataset shown when the provider is
// unavailable or unconfigured.
func Placeholder() []Record {
	return []Record{
		{ID: "sample-0001", DisplayName: "Alice Johnson", Email: "alice.johnson@example.com", Principal: "alice.johnson@example.com", Enabled: true},
		{ID: "sample-0002", DisplayName: "Bob Smith", Email: "bob.smith@example.com", Principal: "bob.smith@example.com", Enabled: true},
		{ID: "sample-0003", DisplayName: "Carol Williams", Email: "carol.williams@example.com", Principal: "carol.williams@example.com", Enabled: true},
		{ID: "sample-0004", DisplayName: "David Brown", Email: "david.brown@example.com", Principal: "david.brown@example.com", Enabled: false},
		{ID: "sample-0005", DisplayName: "Eve Davis", Email: "eve.davis@example.com", Principal: "eve.davis@example.com", Enabled: true},
		{ID: "sample-0006", DisplayName: "Frank Miller", Email: "frank.miller@example.com", Principal: "frank.miller@example.com", Enabled: true},
		{ID: "sample-0007", DisplayName: "Grace Wilson", Email: "grace.wilson@example.com", Principal: "grace.wilson@example.com", Enabled: false},
	}
}
