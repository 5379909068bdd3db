package weight

import "dev/bravebird/weightsync-go/pkg/browser"

// Site-specific selectors for the daily data page. They change when the site
// layout changes; the update state machine does not.
const (
	DailyFormSelector   = "#dailyDataForm"
	WeightInputSelector = `#weight, input[name="weight"]`
)

var (
	// DailyFormChain locates the daily data form
	DailyFormChain = browser.Selectors(DailyFormSelector)

	// WeightInputChain locates the weight input
	WeightInputChain = browser.Selectors("#weight", `input[name="weight"]`)

	// SaveChain locates the save control. Buttons and button links compete
	// in document order. Direct form submission is the last resort after
	// this chain.
	SaveChain = browser.Chain{
		{Selector: "#saveDailyDataBtn"},
		{Selector: "button, a.btn", Text: "save"},
	}
)

// Hidden field names of the daily data form
const (
	fieldToken  = "csrfToken"
	fieldUserID = "userId"
)
