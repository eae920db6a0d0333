package safety

// Resource identifies one crisis support line for the presentation layer
// to render. The core never contacts these itself.
type Resource struct {
	ID          string
	Name        string
	Contact     string
	Description string
}

// ResourceBundle is the fixed set exposed on urgent/emergency levels,
// optionally extended with the user's linked emergency contact.
type ResourceBundle struct {
	Resources        []Resource
	EmergencyContact string
}

var defaultResources = []Resource{
	{
		ID:          "crisis-line-988",
		Name:        "988 Suicide & Crisis Lifeline",
		Contact:     "call or text 988",
		Description: "24/7 free and confidential support",
	},
	{
		ID:          "crisis-text-line",
		Name:        "Crisis Text Line",
		Contact:     "text HOME to 741741",
		Description: "24/7 support by text message",
	},
	{
		ID:          "samhsa-helpline",
		Name:        "SAMHSA National Helpline",
		Contact:     "1-800-662-4357",
		Description: "treatment referral for substance use and mental health",
	},
}

// Resources returns the fixed crisis resource bundle. emergencyContact may
// be empty when the user has not linked one.
func Resources(emergencyContact string) ResourceBundle {
	out := make([]Resource, len(defaultResources))
	copy(out, defaultResources)
	return ResourceBundle{
		Resources:        out,
		EmergencyContact: emergencyContact,
	}
}
